package threads

import (
	"context"

	"threadboard/internal/database"
	"threadboard/internal/models"

	"github.com/google/uuid"
)

// populatePlan says how far to resolve a thread tree. Entry i is the author
// projection for level i; level 0 is the threads passed in, level 1 their
// children and so on. Children are resolved down to level len(plan)-1 and left
// as ids below that.
type populatePlan []models.UserProjection

var (
	// Root posts with their full author, direct replies with summary authors.
	postsPlan = populatePlan{models.FullUser, models.ReplyAuthorSummary}

	// A single thread, its replies and the replies to those.
	threadPlan = populatePlan{models.AuthorSummary, models.ReplyAuthorSummary, models.ReplyAuthorSummary}
)

func (p populatePlan) depth() int {
	return len(p) - 1
}

// arena holds every thread loaded for one population, indexed by id.
type arena map[uuid.UUID]*models.Thread

func (a arena) add(threads []*models.Thread) {
	for _, t := range threads {
		a[t.ID] = t
	}
}

// populate resolves roots according to plan. Threads are loaded level by level
// with one batched lookup per level, so a cycle in children cannot recurse
// further than the plan allows. Children that no longer exist are dropped;
// authors that do not exist are left unresolved.
func populate(ctx context.Context, store database.Store, roots []*models.Thread, plan populatePlan) ([]*models.ThreadNode, error) {
	if len(roots) == 0 || len(plan) == 0 {
		return wrap(roots), nil
	}

	loaded := make(arena)
	loaded.add(roots)

	// levels[i] is the list of thread ids present at depth i.
	levels := make([][]uuid.UUID, 0, len(plan))
	levels = append(levels, threadIDs(roots))

	for depth := 1; depth <= plan.depth(); depth++ {
		var childIDs []uuid.UUID
		var missing []uuid.UUID
		for _, id := range levels[depth-1] {
			parent, ok := loaded[id]
			if !ok {
				continue
			}
			for _, childID := range parent.Children {
				childIDs = append(childIDs, childID)
				if _, ok := loaded[childID]; !ok {
					missing = append(missing, childID)
				}
			}
		}

		if len(missing) > 0 {
			children, err := store.FindThreads(ctx, dedupe(missing))
			if err != nil {
				return nil, err
			}
			loaded.add(children)
		}
		levels = append(levels, childIDs)
	}

	authors, err := loadAuthors(ctx, store, loaded, levels, plan)
	if err != nil {
		return nil, err
	}

	nodes := make([]*models.ThreadNode, 0, len(roots))
	for _, root := range roots {
		nodes = append(nodes, buildNode(root, 0, loaded, authors, plan))
	}
	return nodes, nil
}

// loadAuthors fetches the authors of each level, grouping the lookups by
// projection. The result is keyed by projection then user id.
func loadAuthors(ctx context.Context, store database.Store, loaded arena, levels [][]uuid.UUID, plan populatePlan) (map[string]map[uuid.UUID]*models.Author, error) {
	wanted := make(map[string][]uuid.UUID)
	projections := make(map[string]models.UserProjection)

	for depth, ids := range levels {
		projection := plan[depth]
		key := projection.Key()
		projections[key] = projection
		for _, id := range ids {
			if t, ok := loaded[id]; ok {
				wanted[key] = append(wanted[key], t.AuthorID)
			}
		}
	}

	authors := make(map[string]map[uuid.UUID]*models.Author, len(wanted))
	for key, ids := range wanted {
		found, err := store.FindUsers(ctx, dedupe(ids), projections[key])
		if err != nil {
			return nil, err
		}
		byID := make(map[uuid.UUID]*models.Author, len(found))
		for _, a := range found {
			byID[a.ID] = a
		}
		authors[key] = byID
	}
	return authors, nil
}

func buildNode(t *models.Thread, depth int, loaded arena, authors map[string]map[uuid.UUID]*models.Author, plan populatePlan) *models.ThreadNode {
	node := models.NewThreadNode(t)
	if author, ok := authors[plan[depth].Key()][t.AuthorID]; ok {
		copied := *author
		node.Author = &copied
	}

	if depth >= plan.depth() {
		return node
	}

	node.Children = make([]*models.ThreadNode, 0, len(t.Children))
	for _, childID := range t.Children {
		child, ok := loaded[childID]
		if !ok {
			continue
		}
		node.Children = append(node.Children, buildNode(child, depth+1, loaded, authors, plan))
	}
	return node
}

func wrap(threads []*models.Thread) []*models.ThreadNode {
	nodes := make([]*models.ThreadNode, 0, len(threads))
	for _, t := range threads {
		nodes = append(nodes, models.NewThreadNode(t))
	}
	return nodes
}

func threadIDs(threads []*models.Thread) []uuid.UUID {
	ids := make([]uuid.UUID, len(threads))
	for i, t := range threads {
		ids[i] = t.ID
	}
	return ids
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
