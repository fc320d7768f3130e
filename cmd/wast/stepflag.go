package main

import "strings"

// stepListFlag is a pflag.Value that both accumulates repeated flag
// occurrences and splits each occurrence on commas, grounded on the
// original tool's `_SplitAppendAction` (__main__.py): `-s a -s b,c` and
// `-s a,b,c` both yield ["a", "b", "c"].
type stepListFlag struct {
	values []string
}

func (f *stepListFlag) String() string {
	return strings.Join(f.values, ",")
}

func (f *stepListFlag) Set(raw string) error {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			f.values = append(f.values, part)
		}
	}
	return nil
}

func (f *stepListFlag) Type() string { return "stepList" }
