// Package banner prints the startup summary of the service.
package banner

import (
	"fmt"
	"io"
)

const logo = `
======================================================================
__   _____  ___ ____   ___ ___ _ __ | |_ ___ _ __
\ \ / / _ \|_ _|  _ \ / __/ _ \ '_ \| __/ _ \ '__|
 \ V / (_) || || |_) | (_|  __/ | | | ||  __/ |
  \_/ \___/|___|  __/ \___\___|_| |_|\__\___|_|
               |_|
----------------------------------------------------------------------`

const rule = `======================================================================`

// Line is one labelled setting
type Line struct {
	Label string
	Value string
}

// Section groups related settings under a heading
type Section struct {
	Title string
	Lines []Line
}

// Add appends a setting. Empty values are left out.
func (s *Section) Add(label, value string) {
	if value == "" {
		return
	}
	s.Lines = append(s.Lines, Line{Label: label, Value: value})
}

// Print writes the logo, the service heading and every section that has at
// least one line. Labels line up across sections.
func Print(w io.Writer, service, nodeID string, sections []Section) {
	fmt.Fprintln(w, logo)
	if nodeID != "" {
		fmt.Fprintf(w, "%s @ %s\n", service, nodeID)
	} else {
		fmt.Fprintln(w, service)
	}

	width := 0
	for _, s := range sections {
		for _, l := range s.Lines {
			width = max(width, len(l.Label)+1)
		}
	}

	for _, s := range sections {
		if len(s.Lines) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n[%s]\n", s.Title)
		for _, l := range s.Lines {
			fmt.Fprintf(w, "  %-*s %s\n", width, l.Label+":", l.Value)
		}
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}
