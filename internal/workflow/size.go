package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
)

// Size is an output resolution in pixels
type Size struct {
	Width  int
	Height int
}

// Presets maps size names to common aspect ratios
var Presets = map[string]Size{
	"square":    {1024, 1024},
	"portrait":  {768, 1344},  // phone splash
	"landscape": {1344, 768},  // banner
	"wide":      {1536, 640},  // ultra-wide banner
	"phone":     {1080, 1920}, // phone screen
	"instagram": {1080, 1080},
	"story":     {1080, 1920},
}

// PresetNames returns the preset names in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSize accepts "WxH" or a preset name. Unknown presets fall back to square.
func ParseSize(s string) (Size, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if w, h, ok := strings.Cut(s, "x"); ok {
		width, err := strconv.Atoi(strings.TrimSpace(w))
		if err != nil {
			return Size{}, fmt.Errorf("invalid width %q: %w", w, err)
		}
		height, err := strconv.Atoi(strings.TrimSpace(h))
		if err != nil {
			return Size{}, fmt.Errorf("invalid height %q: %w", h, err)
		}
		if width <= 0 || height <= 0 {
			return Size{}, fmt.Errorf("size must be positive, got %dx%d", width, height)
		}
		return Size{Width: width, Height: height}, nil
	}
	if size, ok := Presets[s]; ok {
		return size, nil
	}
	return Size{Width: domain.DefaultWidth, Height: domain.DefaultHeight}, nil
}
