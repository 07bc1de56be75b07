package es

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"golang.org/x/sync/errgroup"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/config"
	"github.com/labtiva/curator/internal/entity"
)

type IndexInfo struct {
	Name         string `json:"index"`
	Health       string `json:"health"`
	Status       string `json:"status"`
	DocsCount    string `json:"docs.count"`
	StoreSize    string `json:"store.size"`
	PriStoreSize string `json:"pri.store.size"`
	CreationDate string `json:"creation.date"`
}

type AliasInfo struct {
	Alias        string `json:"alias"`
	Index        string `json:"index"`
	IsWriteIndex string `json:"is_write_index"`
}

type SnapshotInfo struct {
	Name              string   `json:"snapshot"`
	State             string   `json:"state"`
	Indices           []string `json:"indices"`
	StartTimeInMillis int64    `json:"start_time_in_millis"`
	EndTimeInMillis   int64    `json:"end_time_in_millis"`
}

type snapshotsResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

type indexSettings struct {
	Settings map[string]any `json:"settings"`
}

const routingPrefix = "index.routing.allocation."

// Catalog lists the indices of the cluster and the snapshots of one
// repository as entities.
type Catalog struct {
	client     *Client
	repository string
}

func (c *Client) Catalog(repository string) *Catalog {
	return &Catalog{client: c, repository: repository}
}

func (cat *Catalog) ListEntities(ctx context.Context, kind entity.Kind) ([]entity.Entity, error) {
	if kind == entity.KindSnapshot {
		return cat.snapshots(ctx, "_all")
	}
	return cat.indices(ctx)
}

func (cat *Catalog) GetEntity(ctx context.Context, kind entity.Kind, name string) (entity.Entity, error) {
	var (
		items []entity.Entity
		err   error
	)
	if kind == entity.KindSnapshot {
		items, err = cat.snapshots(ctx, name)
	} else {
		items, err = cat.indices(ctx, name)
	}
	if action.KindOf(err) == action.NotFound {
		return entity.Entity{}, entity.NotFound(kind, name)
	}
	if err != nil {
		return entity.Entity{}, err
	}
	for _, e := range items {
		if e.Name == name {
			return e, nil
		}
	}
	return entity.Entity{}, entity.NotFound(kind, name)
}

func (cat *Catalog) indices(ctx context.Context, names ...string) ([]entity.Entity, error) {
	c := cat.client
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		indices  []IndexInfo
		aliases  []AliasInfo
		routing  map[string]map[string]string
		routeErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		indices, err = c.fetchIndices(gctx, names...)
		return err
	})
	g.Go(func() error {
		var err error
		aliases, err = c.fetchAliases(gctx)
		return err
	})
	g.Go(func() error {
		routing, routeErr = c.fetchRouting(gctx, names...)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if routeErr != nil {
		c.log.Warn().Err(routeErr).Msg("allocation settings unavailable, allocation filters will skip every index")
	}

	return buildIndices(indices, aliases, routing), nil
}

// buildIndices joins the cat listings into entities. routing may be nil
// when the settings could not be read.
func buildIndices(indices []IndexInfo, aliases []AliasInfo, routing map[string]map[string]string) []entity.Entity {
	byIndex := make(map[string][]string)
	for _, a := range aliases {
		byIndex[a.Index] = append(byIndex[a.Index], a.Alias)
	}
	writers := writeTargets(aliases)

	out := make([]entity.Entity, 0, len(indices))
	for _, idx := range indices {
		e := entity.Entity{
			Name:          idx.Name,
			Kind:          entity.KindIndex,
			State:         entity.StateOpen,
			Aliases:       byIndex[idx.Name],
			IsWriteTarget: writers[idx.Name],
		}
		if idx.Status == "close" {
			e.State = entity.StateClosed
		}
		if idx.Health != "" {
			e.Tags = map[string]string{"health": idx.Health}
		}
		if ms, err := strconv.ParseInt(idx.CreationDate, 10, 64); err == nil && ms > 0 {
			e.CreationTime = time.UnixMilli(ms).UTC()
		}
		docs, errDocs := strconv.ParseInt(idx.DocsCount, 10, 64)
		size, errSize := strconv.ParseInt(idx.StoreSize, 10, 64)
		if errDocs == nil && errSize == nil {
			e.StatsKnown = true
			e.DocCount = docs
			e.SizeBytes = size
			e.PrimarySizeBytes, _ = strconv.ParseInt(idx.PriStoreSize, 10, 64)
		}
		if routing != nil {
			e.Routing = routing[idx.Name]
			if e.Routing == nil {
				e.Routing = map[string]string{}
			}
		}
		out = append(out, e)
	}
	return out
}

// writeTargets marks the index each alias writes to: the one flagged
// is_write_index, or the only index of an alias that sets no flag.
func writeTargets(aliases []AliasInfo) map[string]bool {
	type group struct {
		indices  []string
		explicit bool
	}
	groups := make(map[string]*group)
	writers := make(map[string]bool)
	for _, a := range aliases {
		g := groups[a.Alias]
		if g == nil {
			g = &group{}
			groups[a.Alias] = g
		}
		g.indices = append(g.indices, a.Index)
		switch a.IsWriteIndex {
		case "true":
			g.explicit = true
			writers[a.Index] = true
		case "false":
			g.explicit = true
		}
	}
	for _, g := range groups {
		if !g.explicit && len(g.indices) == 1 {
			writers[g.indices[0]] = true
		}
	}
	return writers
}

func (c *Client) fetchIndices(ctx context.Context, names ...string) ([]IndexInfo, error) {
	opts := []func(*esapi.CatIndicesRequest){
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithFormat("json"),
		c.es.Cat.Indices.WithH("index", "health", "status", "docs.count", "store.size", "pri.store.size", "creation.date"),
		c.es.Cat.Indices.WithBytes("b"),
		c.es.Cat.Indices.WithExpandWildcards("open,closed"),
	}
	if len(names) > 0 {
		opts = append(opts, c.es.Cat.Indices.WithIndex(names...))
	}
	res, err := c.es.Cat.Indices(opts...)
	if err != nil {
		return nil, transportError(err, "fetching indices")
	}

	var indices []IndexInfo
	if err := decode(res, "indices", &indices); err != nil {
		return nil, err
	}

	sort.Slice(indices, func(i, j int) bool {
		return indices[i].Name < indices[j].Name
	})

	return indices, nil
}

func (c *Client) fetchAliases(ctx context.Context) ([]AliasInfo, error) {
	res, err := c.es.Cat.Aliases(
		c.es.Cat.Aliases.WithContext(ctx),
		c.es.Cat.Aliases.WithFormat("json"),
		c.es.Cat.Aliases.WithH("alias", "index", "is_write_index"),
	)
	if err != nil {
		return nil, transportError(err, "fetching aliases")
	}

	var aliases []AliasInfo
	if err := decode(res, "aliases", &aliases); err != nil {
		return nil, err
	}

	sort.Slice(aliases, func(i, j int) bool {
		if aliases[i].Alias != aliases[j].Alias {
			return aliases[i].Alias < aliases[j].Alias
		}
		return aliases[i].Index < aliases[j].Index
	})

	return aliases, nil
}

// fetchRouting returns the allocation settings of every index keyed by
// "<require|include|exclude>.<attribute>".
func (c *Client) fetchRouting(ctx context.Context, names ...string) (map[string]map[string]string, error) {
	opts := []func(*esapi.IndicesGetSettingsRequest){
		c.es.Indices.GetSettings.WithContext(ctx),
		c.es.Indices.GetSettings.WithFlatSettings(true),
		c.es.Indices.GetSettings.WithName(routingPrefix + "*"),
		c.es.Indices.GetSettings.WithExpandWildcards("open,closed"),
	}
	if len(names) > 0 {
		opts = append(opts, c.es.Indices.GetSettings.WithIndex(names...))
	}
	res, err := c.es.Indices.GetSettings(opts...)
	if err != nil {
		return nil, transportError(err, "fetching index settings")
	}

	var raw map[string]indexSettings
	if err := decode(res, "index settings", &raw); err != nil {
		return nil, err
	}
	return parseRouting(raw), nil
}

func parseRouting(raw map[string]indexSettings) map[string]map[string]string {
	out := make(map[string]map[string]string, len(raw))
	for index, s := range raw {
		routing := make(map[string]string)
		for k, v := range s.Settings {
			if !strings.HasPrefix(k, routingPrefix) {
				continue
			}
			routing[strings.TrimPrefix(k, routingPrefix)] = fmt.Sprint(v)
		}
		out[index] = routing
	}
	return out
}

func (cat *Catalog) snapshots(ctx context.Context, name string) ([]entity.Entity, error) {
	if cat.repository == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("a snapshot repository is required").
			WithCause(config.ErrInvalidConfig)
	}
	c := cat.client
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.es.Snapshot.Get(cat.repository, []string{name},
		c.es.Snapshot.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, transportError(err, "fetching snapshots")
	}

	var body snapshotsResponse
	if err := decode(res, "snapshots", &body); err != nil {
		return nil, err
	}
	return buildSnapshots(cat.repository, body.Snapshots), nil
}

func buildSnapshots(repository string, snaps []SnapshotInfo) []entity.Entity {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].StartTimeInMillis != snaps[j].StartTimeInMillis {
			return snaps[i].StartTimeInMillis < snaps[j].StartTimeInMillis
		}
		return snaps[i].Name < snaps[j].Name
	})

	out := make([]entity.Entity, 0, len(snaps))
	for _, s := range snaps {
		e := entity.Entity{
			Name:       s.Name,
			Kind:       entity.KindSnapshot,
			Repository: repository,
			Indices:    s.Indices,
		}
		if st, err := entity.ParseState(entity.KindSnapshot, s.State); err == nil {
			e.State = st
		} else {
			e.State = entity.StateFailed
		}
		if s.StartTimeInMillis > 0 {
			e.CreationTime = time.UnixMilli(s.StartTimeInMillis).UTC()
		}
		out = append(out, e)
	}
	return out
}
