package es

import (
	"context"
	"sort"
)

// Repository is a registered snapshot repository.
type Repository struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings,omitempty"`
}

func (c *Client) Repositories(ctx context.Context) ([]Repository, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.es.Snapshot.GetRepository(c.es.Snapshot.GetRepository.WithContext(ctx))
	if err != nil {
		return nil, transportError(err, "fetching repositories")
	}

	var raw map[string]struct {
		Type     string         `json:"type"`
		Settings map[string]any `json:"settings"`
	}
	if err := decode(res, "repositories", &raw); err != nil {
		return nil, err
	}

	repos := make([]Repository, 0, len(raw))
	for name, r := range raw {
		repos = append(repos, Repository{Name: name, Type: r.Type, Settings: r.Settings})
	}
	sort.Slice(repos, func(i, j int) bool {
		return repos[i].Name < repos[j].Name
	})
	return repos, nil
}

// CreateRepository registers a repository. With verify the cluster checks
// that every node can reach it.
func (c *Client) CreateRepository(ctx context.Context, repo Repository, verify bool) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	body, err := jsonBody(map[string]any{"type": repo.Type, "settings": repo.Settings})
	if err != nil {
		return err
	}
	res, err := c.es.Snapshot.CreateRepository(repo.Name, body,
		c.es.Snapshot.CreateRepository.WithContext(ctx),
		c.es.Snapshot.CreateRepository.WithVerify(verify),
	)
	return done(res, err, "creating repository "+repo.Name)
}

func (c *Client) DeleteRepository(ctx context.Context, name string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.es.Snapshot.DeleteRepository([]string{name},
		c.es.Snapshot.DeleteRepository.WithContext(ctx),
	)
	return done(res, err, "deleting repository "+name)
}
