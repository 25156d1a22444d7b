package param

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

func checkBounds[T constraints.Ordered](lower, upper T) error {
	if lower >= upper {
		return fmt.Errorf("lower bound %v must be below upper bound %v", lower, upper)
	}
	return nil
}

func clamp[T constraints.Ordered](v, lower, upper T) T {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}
