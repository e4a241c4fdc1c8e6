package remote

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"emperror.dev/errors"
	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcmanager/minimanager/internal/models"
)

type worldsPage struct {
	Data []World `json:"data"`
	Meta struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
}

// GetEnabledWorlds fetches the first page and then every remaining page in
// parallel.
func (c *client) GetEnabledWorlds(ctx context.Context, perPage int) ([]World, error) {
	worlds, meta, err := c.getWorldsPaged(ctx, 1, perPage)
	if err != nil {
		return nil, err
	}
	if meta.LastPage > 1 {
		var mu sync.Mutex
		g, ctx := errgroup.WithContext(ctx)
		for page := meta.CurrentPage + 1; page <= meta.LastPage; page++ {
			page := page
			g.Go(func() error {
				ws, _, err := c.getWorldsPaged(ctx, int(page), perPage)
				if err != nil {
					return err
				}
				mu.Lock()
				worlds = append(worlds, ws...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return worlds, nil
}

func (c *client) getWorldsPaged(ctx context.Context, page, limit int) ([]World, Pagination, error) {
	res, err := c.get(ctx, "/worlds", q{
		"enabled":  "1",
		"page":     strconv.Itoa(page),
		"per_page": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, Pagination{}, err
	}
	defer res.Body.Close()
	if res.HasError() {
		return nil, Pagination{}, res.Error()
	}
	var r worldsPage
	if err := res.BindJSON(&r); err != nil {
		return nil, Pagination{}, err
	}
	out := make([]World, 0, len(r.Data))
	for _, w := range r.Data {
		if err := w.Validate(); err != nil {
			log.WithField("world", w.ID).WithField("error", err).Warn("skipping invalid world returned by control plane")
			continue
		}
		out = append(out, w)
	}
	return out, r.Meta.Pagination, nil
}

func (c *client) GetWorld(ctx context.Context, id string) (World, error) {
	var w World
	res, err := c.get(ctx, fmt.Sprintf("/worlds/%s", id), nil)
	if err != nil {
		return w, err
	}
	defer res.Body.Close()
	if res.HasError() {
		return w, res.Error()
	}
	if err := res.BindJSON(&w); err != nil {
		return w, err
	}
	return w, w.Validate()
}

func (c *client) SendActivityLogs(ctx context.Context, activity []models.Activity) error {
	res, err := c.post(ctx, "/activity", map[string]interface{}{"data": activity})
	if err != nil {
		return errors.WithStackIf(err)
	}
	defer res.Body.Close()
	return res.Error()
}
