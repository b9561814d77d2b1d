package clist

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paul-wild/FAU-Clist-Bot/internal/timeutil"
)

type wireResponse struct {
	Objects *[]wireContest `json:"objects"`
}

type wireContest struct {
	ID       *int64        `json:"id"`
	Event    *string       `json:"event"`
	Href     string        `json:"href"`
	Start    *string       `json:"start"`
	End      *string       `json:"end"`
	Resource *wireResource `json:"resource"`
}

type wireResource struct {
	ID int `json:"id"`
}

// decodeContests fails closed: one malformed record rejects the whole body.
func decodeContests(body []byte) ([]Contest, error) {
	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ProviderError{Op: "decode", Err: err}
	}
	if resp.Objects == nil {
		return nil, &ProviderError{Op: "schema", Err: errors.New(`missing "objects"`)}
	}

	out := make([]Contest, 0, len(*resp.Objects))
	for i, w := range *resp.Objects {
		c, err := w.toContest()
		if err != nil {
			return nil, &ProviderError{Op: "schema", Err: fmt.Errorf("objects[%d]: %w", i, err)}
		}
		out = append(out, c)
	}
	return out, nil
}

func (w wireContest) toContest() (Contest, error) {
	if w.ID == nil {
		return Contest{}, errors.New("missing id")
	}
	if w.Event == nil || strings.TrimSpace(*w.Event) == "" {
		return Contest{}, fmt.Errorf("contest %d: missing event", *w.ID)
	}
	if w.Start == nil || w.End == nil {
		return Contest{}, fmt.Errorf("contest %d: missing start or end", *w.ID)
	}
	start, err := timeutil.ParseProviderTime(*w.Start)
	if err != nil {
		return Contest{}, fmt.Errorf("contest %d: %w", *w.ID, err)
	}
	end, err := timeutil.ParseProviderTime(*w.End)
	if err != nil {
		return Contest{}, fmt.Errorf("contest %d: %w", *w.ID, err)
	}
	if end.Before(start) {
		return Contest{}, fmt.Errorf("contest %d: end %s before start %s", *w.ID, *w.End, *w.Start)
	}

	c := Contest{ID: *w.ID, Event: *w.Event, Href: w.Href, Start: start, End: end}
	if w.Resource != nil {
		c.ResourceID = w.Resource.ID
	}
	return c, nil
}
