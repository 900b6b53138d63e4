package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
	"github.com/mattsolo1/grove-scanner/pkg/service"
)

// resolveItem accepts a full id or a unique id prefix, as printed by list.
func resolveItem(s *service.Service, ref string) (models.Item, error) {
	item, err := s.GetItem(ref)
	if err == nil || !errors.Is(err, scanerr.ErrNotFound) {
		return item, err
	}

	all, lerr := s.ListAll()
	if lerr != nil {
		return models.Item{}, lerr
	}
	var matches []models.Item
	for _, it := range all {
		if strings.HasPrefix(it.ID, ref) {
			matches = append(matches, it)
		}
	}
	switch len(matches) {
	case 0:
		return models.Item{}, err
	case 1:
		return matches[0], nil
	default:
		return models.Item{}, fmt.Errorf("%q matches %d items, use a longer id", ref, len(matches))
	}
}

func resolveIDs(s *service.Service, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		item, err := resolveItem(s, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, item.ID)
	}
	return ids, nil
}
