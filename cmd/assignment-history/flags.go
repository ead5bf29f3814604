package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/lendops/pkg/caldate"
)

func parseID(flag, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, invalidInput(map[string]string{flag: "uuid"})
	}
	return id, nil
}

func parseIDs(flag string, raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := parseID(flag, s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// parseDate treats an empty value as today (UTC).
func parseDate(flag, raw string) (caldate.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return caldate.Today(), nil
	}
	d, err := caldate.Parse(raw)
	if err != nil {
		return caldate.Date{}, invalidInput(map[string]string{flag: "date"})
	}
	return d, nil
}

// parseLookup reads "<entity id>@<YYYY-MM-DD>".
func parseLookup(raw string) (uuid.UUID, caldate.Date, error) {
	entity, day, ok := strings.Cut(raw, "@")
	if !ok {
		return uuid.Nil, caldate.Date{}, invalidInput(map[string]string{"lookup": fmt.Sprintf("expected <entity>@<date>, got %q", raw)})
	}
	id, err := parseID("lookup", entity)
	if err != nil {
		return uuid.Nil, caldate.Date{}, err
	}
	d, err := caldate.Parse(strings.TrimSpace(day))
	if err != nil {
		return uuid.Nil, caldate.Date{}, invalidInput(map[string]string{"lookup": "date"})
	}
	return id, d, nil
}
