package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/entity"
)

// Mutate performs one action request. Errors are *action.Failure values
// classified by HTTP status or transport failure.
func (c *Client) Mutate(ctx context.Context, req action.Request) error {
	if len(req.Names) == 0 {
		return nil
	}
	o := req.Options

	switch req.Action {
	case action.Delete:
		if req.Target == entity.KindSnapshot {
			return c.deleteSnapshots(ctx, o.Repository, req.Names)
		}
		return c.deleteIndices(ctx, req.Names)
	case action.Close:
		return c.closeIndices(ctx, req.Names, o.DeleteAliases)
	case action.Open:
		res, err := c.es.Indices.Open(req.Names, c.es.Indices.Open.WithContext(ctx))
		return done(res, err, "opening "+strings.Join(req.Names, ","))
	case action.ForceMerge:
		return c.forceMerge(ctx, req.Names, o.MaxNumSegments)
	case action.Allocation:
		key := fmt.Sprintf("index.routing.allocation.%s.%s", allocationType(o.AllocationType), o.Key)
		var value any = o.Value
		if o.Value == "" {
			value = nil
		}
		return c.putSettings(ctx, req.Names, map[string]any{key: value})
	case action.Replicas:
		return c.putSettings(ctx, req.Names, map[string]any{"index.number_of_replicas": o.ReplicaCount})
	case action.Snapshot:
		return c.createSnapshot(ctx, req.Names, o)
	case action.Restore:
		return c.restoreSnapshot(ctx, req.Names[0], o)
	case action.Shrink:
		return c.shrink(ctx, req.Names[0], o)
	case action.Rollover:
		return c.rollover(ctx, o.Name, o.Conditions)
	case action.Reindex:
		return c.reindex(ctx, req.Names[0], o)
	}
	return action.NewFailure(action.Unknown, fmt.Errorf("unsupported action %q", req.Action))
}

func done(res *esapi.Response, err error, what string) error {
	if err != nil {
		return transportError(err, what)
	}
	return decode(res, what, nil)
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func allocationType(t string) string {
	if t == "" {
		return "require"
	}
	return t
}

func (c *Client) deleteIndices(ctx context.Context, names []string) error {
	res, err := c.es.Indices.Delete(names, c.es.Indices.Delete.WithContext(ctx))
	return done(res, err, "deleting "+strings.Join(names, ","))
}

func (c *Client) deleteSnapshots(ctx context.Context, repository string, names []string) error {
	res, err := c.es.Snapshot.Delete(repository, names, c.es.Snapshot.Delete.WithContext(ctx))
	return done(res, err, "deleting snapshot "+strings.Join(names, ","))
}

func (c *Client) closeIndices(ctx context.Context, names []string, deleteAliases bool) error {
	if deleteAliases {
		res, err := c.es.Indices.DeleteAlias(names, []string{"_all"}, c.es.Indices.DeleteAlias.WithContext(ctx))
		// An index without aliases answers 404.
		if err := done(res, err, "removing aliases"); err != nil && action.KindOf(err) != action.NotFound {
			return err
		}
	}
	res, err := c.es.Indices.Close(names, c.es.Indices.Close.WithContext(ctx))
	return done(res, err, "closing "+strings.Join(names, ","))
}

func (c *Client) forceMerge(ctx context.Context, names []string, segments int) error {
	res, err := c.es.Indices.Forcemerge(
		c.es.Indices.Forcemerge.WithContext(ctx),
		c.es.Indices.Forcemerge.WithIndex(names...),
		c.es.Indices.Forcemerge.WithMaxNumSegments(segments),
	)
	return done(res, err, "force merging "+strings.Join(names, ","))
}

func (c *Client) putSettings(ctx context.Context, names []string, settings map[string]any) error {
	body, err := jsonBody(settings)
	if err != nil {
		return err
	}
	res, err := c.es.Indices.PutSettings(body,
		c.es.Indices.PutSettings.WithContext(ctx),
		c.es.Indices.PutSettings.WithIndex(names...),
	)
	return done(res, err, "updating settings of "+strings.Join(names, ","))
}

func (c *Client) createSnapshot(ctx context.Context, names []string, o action.Options) error {
	body, err := jsonBody(map[string]any{
		"indices":              strings.Join(names, ","),
		"ignore_unavailable":   o.IgnoreUnavailable,
		"include_global_state": o.IncludeGlobalState,
		"partial":              o.Partial,
	})
	if err != nil {
		return err
	}
	res, err := c.es.Snapshot.Create(o.Repository, o.Name,
		c.es.Snapshot.Create.WithContext(ctx),
		c.es.Snapshot.Create.WithBody(body),
		c.es.Snapshot.Create.WithWaitForCompletion(o.WaitForCompletion),
	)
	return done(res, err, "creating snapshot "+o.Name)
}

func (c *Client) restoreSnapshot(ctx context.Context, snapshot string, o action.Options) error {
	req := map[string]any{
		"include_global_state": o.IncludeGlobalState,
		"partial":              o.Partial,
		"ignore_unavailable":   o.IgnoreUnavailable,
	}
	if len(o.Indices) > 0 {
		req["indices"] = strings.Join(o.Indices, ",")
	}
	if o.RenamePattern != "" {
		req["rename_pattern"] = o.RenamePattern
		req["rename_replacement"] = o.RenameReplacement
	}
	body, err := jsonBody(req)
	if err != nil {
		return err
	}
	res, err := c.es.Snapshot.Restore(o.Repository, snapshot,
		c.es.Snapshot.Restore.WithContext(ctx),
		c.es.Snapshot.Restore.WithBody(body),
		c.es.Snapshot.Restore.WithWaitForCompletion(o.WaitForCompletion),
	)
	return done(res, err, "restoring snapshot "+snapshot)
}

const resizeSourceSetting = "index.resize.source.name"

// ShrinkTarget is the name a shrunk copy of index gets.
func ShrinkTarget(index string, o action.Options) string {
	return o.ShrinkPrefix + index + o.ShrinkSuffix
}

// shrink blocks writes on index, optionally gathers its shards on one node,
// waits for relocation, then shrinks it into a new index. With DeleteAfter
// the source is removed once the target is green.
//
// A target that is already a resize of index means an earlier attempt got
// past the shrink call, so the sequence resumes at the green wait.
func (c *Client) shrink(ctx context.Context, index string, o action.Options) error {
	target := ShrinkTarget(index, o)
	source, exists, err := c.resizeSource(ctx, target)
	switch {
	case err != nil:
		return err
	case exists && source == index && target != index:
		c.log.Info().Str("index", index).Str("target", target).Msg("shrink target exists, resuming")
		return c.finishShrink(ctx, index, target, o)
	case exists:
		return action.NewFailure(action.ConflictingState,
			fmt.Errorf("shrinking %s: target %s already exists and is not a shrink of it", index, target))
	}

	prep := map[string]any{"index.blocks.write": true}
	if o.ShrinkNode != "" {
		prep["index.routing.allocation.require._name"] = o.ShrinkNode
	}
	if err := c.putSettings(ctx, []string{index}, prep); err != nil {
		return err
	}

	res, err := c.es.Cluster.Health(
		c.es.Cluster.Health.WithContext(ctx),
		c.es.Cluster.Health.WithIndex(index),
		c.es.Cluster.Health.WithWaitForNoRelocatingShards(true),
	)
	if err := done(res, err, "waiting for "+index+" to relocate"); err != nil {
		return err
	}

	shards := o.NumberOfShards
	if shards < 1 {
		shards = 1
	}
	body, err := jsonBody(map[string]any{
		"settings": map[string]any{
			"index.number_of_shards":                 shards,
			"index.routing.allocation.require._name": nil,
			"index.blocks.write":                     nil,
		},
	})
	if err != nil {
		return err
	}
	res, err = c.es.Indices.Shrink(index, target,
		c.es.Indices.Shrink.WithContext(ctx),
		c.es.Indices.Shrink.WithBody(body),
	)
	if err := done(res, err, "shrinking "+index+" into "+target); err != nil {
		return err
	}
	return c.finishShrink(ctx, index, target, o)
}

// finishShrink waits for target to turn green and deletes the source index
// when DeleteAfter is set.
func (c *Client) finishShrink(ctx context.Context, index, target string, o action.Options) error {
	if !o.DeleteAfter {
		return nil
	}
	res, err := c.es.Cluster.Health(
		c.es.Cluster.Health.WithContext(ctx),
		c.es.Cluster.Health.WithIndex(target),
		c.es.Cluster.Health.WithWaitForStatus("green"),
	)
	if err := done(res, err, "waiting for "+target+" to turn green"); err != nil {
		return err
	}
	return c.deleteIndices(ctx, []string{index})
}

// resizeSource reports whether target exists and, when it was created by
// a shrink, the index it was shrunk from.
func (c *Client) resizeSource(ctx context.Context, target string) (string, bool, error) {
	res, err := c.es.Indices.GetSettings(
		c.es.Indices.GetSettings.WithContext(ctx),
		c.es.Indices.GetSettings.WithIndex(target),
		c.es.Indices.GetSettings.WithFlatSettings(true),
		c.es.Indices.GetSettings.WithName(resizeSourceSetting),
	)
	if err != nil {
		return "", false, transportError(err, "checking shrink target "+target)
	}
	var raw map[string]indexSettings
	if err := decode(res, "shrink target "+target+" settings", &raw); err != nil {
		if action.KindOf(err) == action.NotFound {
			return "", false, nil
		}
		return "", false, err
	}
	s, ok := raw[target]
	if !ok {
		return "", false, nil
	}
	source, _ := s.Settings[resizeSourceSetting].(string)
	return source, true, nil
}

func (c *Client) rollover(ctx context.Context, alias string, cond action.RolloverConditions) error {
	conditions := map[string]any{}
	if cond.MaxAge != "" {
		conditions["max_age"] = cond.MaxAge
	}
	if cond.MaxDocs > 0 {
		conditions["max_docs"] = cond.MaxDocs
	}
	if cond.MaxSize != "" {
		conditions["max_size"] = cond.MaxSize
	}
	body, err := jsonBody(map[string]any{"conditions": conditions})
	if err != nil {
		return err
	}
	res, err := c.es.Indices.Rollover(alias,
		c.es.Indices.Rollover.WithContext(ctx),
		c.es.Indices.Rollover.WithBody(body),
	)
	return done(res, err, "rolling over "+alias)
}

// ReindexDest is the destination of a reindex of index.
func ReindexDest(index string, o action.Options) string {
	if o.Dest != "" {
		return o.Dest
	}
	return o.DestPrefix + index + o.DestSuffix
}

func (c *Client) reindex(ctx context.Context, index string, o action.Options) error {
	dest := ReindexDest(index, o)
	body, err := jsonBody(map[string]any{
		"source": map[string]any{"index": index},
		"dest":   map[string]any{"index": dest},
	})
	if err != nil {
		return err
	}
	res, err := c.es.Reindex(body,
		c.es.Reindex.WithContext(ctx),
		c.es.Reindex.WithWaitForCompletion(o.WaitForCompletion),
	)
	return done(res, err, "reindexing "+index+" into "+dest)
}

// Version returns the cluster's version number.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.es.Info(c.es.Info.WithContext(ctx))
	if err != nil {
		return "", transportError(err, "fetching cluster info")
	}
	var info struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := decode(res, "cluster info", &info); err != nil {
		return "", err
	}
	return info.Version.Number, nil
}
