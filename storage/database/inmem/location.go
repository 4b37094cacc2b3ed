package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
)

type locationRepository struct {
	db *DB
}

func NewLocationRepository(db *DB) location.Repository {
	return &locationRepository{db: db}
}

func copyNode(n *location.Node) location.Node {
	out := *n
	if n.Members != nil {
		out.Members = append([]location.Member{}, n.Members...)
	}
	if n.DeletedAt != nil {
		out.DeletedAt = core.TimePtr(*n.DeletedAt)
	}
	return out
}

func (repo *locationRepository) CreateNode(_ context.Context, n location.Node) (location.Node, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n.ID = newID()
	if n.Level == location.LevelIsibo && n.Members == nil {
		n.Members = []location.Member{}
	}
	stored := copyNode(&n)
	repo.db.nodes[n.Level][n.ID] = &stored
	return n, nil
}

func (repo *locationRepository) get(level location.Level, id string, unscoped bool) (*location.Node, error) {
	n, ok := repo.db.nodes[level][id]
	if !ok || (n.DeletedAt != nil && !unscoped) {
		return nil, core.NewNotFoundError(string(level))
	}
	return n, nil
}

func (repo *locationRepository) GetNode(_ context.Context, level location.Level, id string, unscoped bool) (location.Node, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	n, err := repo.get(level, id, unscoped)
	if err != nil {
		return location.Node{}, err
	}
	return copyNode(n), nil
}

func (repo *locationRepository) QueryNodes(_ context.Context, level location.Level, qf location.QueryFilter, pq core.PageQuery) (core.Page[location.Node], error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	nodes := make([]location.Node, 0)
	for _, n := range repo.db.nodes[level] {
		if n.DeletedAt != nil {
			continue
		}
		if qf.ParentID != "" && n.ParentID != qf.ParentID {
			continue
		}
		if !matches(pq.Search, n.Name, n.Code, n.Street) {
			continue
		}
		nodes = append(nodes, copyNode(n))
	}
	sortByString(nodes,
		func(n location.Node) string { return n.Name + n.Code },
		func(n location.Node) string { return n.ID },
	)
	return core.Paginate(nodes, pq), nil
}

func (repo *locationRepository) UpdateNode(_ context.Context, n location.Node) (location.Node, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, err := repo.get(n.Level, n.ID, false)
	if err != nil {
		return location.Node{}, err
	}
	orig.Name = n.Name
	orig.Code = n.Code
	orig.Street = n.Street
	if n.Level == location.LevelIsibo {
		orig.Members = append([]location.Member{}, n.Members...)
	}
	orig.UpdatedAt = n.UpdatedAt
	return copyNode(orig), nil
}

func (repo *locationRepository) DeleteNode(_ context.Context, level location.Level, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, err := repo.get(level, id, false)
	if err != nil {
		return err
	}
	n.DeletedAt = core.TimePtr(at)
	n.HasLeader = false
	n.LeaderID = ""
	return nil
}

func (repo *locationRepository) ListChildren(_ context.Context, level location.Level, parentID string) ([]location.Node, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var nodes []location.Node
	for _, n := range repo.db.nodes[level] {
		if n.DeletedAt == nil && n.ParentID == parentID {
			nodes = append(nodes, copyNode(n))
		}
	}
	id := func(n location.Node) string { return n.ID }
	sortByString(nodes, id, id)
	return nodes, nil
}

func (repo *locationRepository) NameExists(_ context.Context, level location.Level, name, excludeID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, n := range repo.db.nodes[level] {
		if n.DeletedAt == nil && n.ID != excludeID && strings.EqualFold(n.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *locationRepository) SetLeader(_ context.Context, level location.Level, nodeID, profileID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, err := repo.get(level, nodeID, false)
	if err != nil {
		return err
	}
	n.LeaderID = profileID
	n.HasLeader = profileID != ""
	return nil
}

func (repo *locationRepository) FindLedBy(_ context.Context, level location.Level, profileID string) (location.Node, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, n := range repo.db.nodes[level] {
		if n.DeletedAt == nil && n.HasLeader && n.LeaderID == profileID {
			return copyNode(n), nil
		}
	}
	return location.Node{}, core.NewNotFoundError(string(level))
}

func (repo *locationRepository) SetRepresentative(_ context.Context, houseID, userID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, err := repo.get(location.LevelHouse, houseID, false)
	if err != nil {
		return err
	}
	n.RepresentativeID = userID
	return nil
}
