package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestTesting_CompareArrays(t *testing.T) {
	a := []int{1, 2, 3, 4, 5}
	b := []int{1, 2, 3, 4, 5}
	Assert(t, CompareArrays(a, b), "Arrays are not equal")
}

func TestTesting_CompareArrays_DifferentLengths(t *testing.T) {
	a := []int{1, 2, 3, 4, 5}
	b := []int{1, 2, 3, 4}
	Assert(t, !CompareArrays(a, b), "Arrays are equal")
}

func TestTesting_CompareArrays_DifferentElements(t *testing.T) {
	a := []int{1, 2, 3}
	b := []int{1, 2, 4}
	Assert(t, !CompareArrays(a, b), "Arrays are equal")
}

func TestTesting_ErrorIsWrapped(t *testing.T) {
	sentinel := errors.New("sentinel")
	wrapped := fmt.Errorf("context: %w", sentinel)
	AssertErrorIs(t, wrapped, sentinel)
}
