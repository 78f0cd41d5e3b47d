package binder

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nokia-audio/alsapolicyd/internal/model"
)

// percentToValue implements spec.md §4.2's percent-to-value formula:
//
//	f = min + p/100 * (max - min)
//
// p >= 100 clamps to max, p <= 0 clamps to min. Otherwise, when step != 0
// the floor of f is snapped upward to the next multiple of step (clamped
// to max); when step == 0 the ceiling of f is used (clamped to max).
func percentToValue(p, min, max, step int64) int64 {
	if p >= 100 {
		return max
	}

	if p <= 0 {
		return min
	}

	f := float64(min) + float64(p)/100*float64(max-min)

	var v float64
	if step != 0 {
		floor := math.Floor(f)
		mod := math.Mod(floor-float64(min), float64(step))
		add := math.Mod(float64(step)-mod, float64(step))
		v = floor + add
	} else {
		v = math.Ceil(f)
	}

	if v > float64(max) {
		v = float64(max)
	}

	return int64(v)
}

// resolveInt parses the textual form of an int-kind rule value: a decimal
// integer with an optional trailing "U" (unit-less) or "%" (percent of
// [min, max], see percentToValue).
func resolveInt(valueStr string, d model.IntDescriptor) (int64, error) {
	switch {
	case strings.HasSuffix(valueStr, "%"):
		digits := strings.TrimSuffix(valueStr, "%")

		p, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid percent value %q", valueStr)
		}

		return percentToValue(p, d.Min, d.Max, d.Step), nil

	case strings.HasSuffix(valueStr, "U"):
		digits := strings.TrimSuffix(valueStr, "U")

		v, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer value %q", valueStr)
		}

		return v, checkRange(v, d)

	default:
		v, err := strconv.ParseInt(valueStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer value %q", valueStr)
		}

		return v, checkRange(v, d)
	}
}

func checkRange(v int64, d model.IntDescriptor) error {
	if v < d.Min || v > d.Max {
		return fmt.Errorf("value %d is out of range (%d - %d)", v, d.Min, d.Max)
	}

	if d.Step != 0 && (v-d.Min)%d.Step != 0 {
		return fmt.Errorf("value %d is out of range (%d - %d, step %d)", v, d.Min, d.Max, d.Step)
	}

	return nil
}

// resolveEnum resolves valueStr to the index of the matching name in d,
// an exact (case-sensitive) match required.
func resolveEnum(valueStr string, d model.EnumDescriptor) (int64, error) {
	for i, name := range d.Names {
		if name == valueStr {
			return int64(i), nil
		}
	}

	return 0, fmt.Errorf("invalid enumeration value %q", valueStr)
}

// resolveBool resolves valueStr case-insensitively against {true,yes,on}
// (-> 1) and {false,no,off} (-> 0).
func resolveBool(valueStr string) (int64, error) {
	switch strings.ToLower(valueStr) {
	case "true", "yes", "on":
		return 1, nil
	case "false", "no", "off":
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid boolean value string %q", valueStr)
	}
}

// resolveValue dispatches on kind/descriptor.
func resolveValue(valueStr string, kind model.ValueKind, descriptor model.Descriptor) (int64, error) {
	switch kind {
	case model.ValueKindInt:
		d, _ := descriptor.(model.IntDescriptor)

		return resolveInt(valueStr, d)

	case model.ValueKindEnum:
		d, _ := descriptor.(model.EnumDescriptor)

		return resolveEnum(valueStr, d)

	case model.ValueKindBool:
		return resolveBool(valueStr)

	default:
		return 0, fmt.Errorf("element has no resolvable value kind")
	}
}
