package location

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

var ErrNameTaken = errors.New("name already taken")

// Repository is the persistence layer of the location hierarchy.
type Repository interface {
	CreateNode(ctx context.Context, n Node) (Node, error)
	GetNode(ctx context.Context, level Level, id string, unscoped bool) (Node, error)
	QueryNodes(ctx context.Context, level Level, qf QueryFilter, pq core.PageQuery) (core.Page[Node], error)
	UpdateNode(ctx context.Context, n Node) (Node, error)
	DeleteNode(ctx context.Context, level Level, id string, at time.Time) error
	// NameExists checks live nodes of level, ignoring excludeID.
	NameExists(ctx context.Context, level Level, name, excludeID string) (bool, error)
	// SetLeader sets the leader of a node; an empty profileID clears it.
	SetLeader(ctx context.Context, level Level, nodeID, profileID string) error
	// ListChildren returns the live nodes of level owned by parentID.
	ListChildren(ctx context.Context, level Level, parentID string) ([]Node, error)
	// FindLedBy returns the live node of level led by profileID, or a NotFoundError.
	FindLedBy(ctx context.Context, level Level, profileID string) (Node, error)
	// SetRepresentative sets a house representative; an empty userID clears it.
	SetRepresentative(ctx context.Context, houseID, userID string) error
}

// Profiles is what leader assignment needs from the user domain.
type Profiles interface {
	// EnsureProfile returns the profile ID of userID, creating the profile if missing.
	EnsureProfile(ctx context.Context, userID string) (string, error)
	SetPosition(ctx context.Context, profileID string, level Level, locationID string) error
	// ClearPosition clears the level position only if it still points to locationID.
	ClearPosition(ctx context.Context, profileID string, level Level, locationID string) error
	UserExists(ctx context.Context, userID string) error
}

type Service interface {
	Create(ctx context.Context, level Level, nn NewNode) (Node, error)
	Get(ctx context.Context, level Level, id string, unscoped bool) (Node, error)
	Query(ctx context.Context, level Level, qf QueryFilter, pq core.PageQuery) (core.Page[Node], error)
	Update(ctx context.Context, level Level, id string, un UpdateNode) (Node, error)
	Delete(ctx context.Context, level Level, id string) error

	AssignLeader(ctx context.Context, level Level, nodeID, userID string) (Node, error)
	RemoveLeader(ctx context.Context, level Level, nodeID string) (Node, error)
	AssignRepresentative(ctx context.Context, houseID, userID string) (Node, error)
	RemoveRepresentative(ctx context.Context, houseID string) (Node, error)

	// Validator exposes the validator used for inputs, for handler level checks.
	Validator() *validator.Validate
}

type service struct {
	tx       core.Transactor
	repo     Repository
	profiles Profiles
	validate *validator.Validate
	now      core.NowFunc
}

func NewService(tx core.Transactor, repo Repository, profiles Profiles, validate *validator.Validate) Service {
	return &service{tx: tx, repo: repo, profiles: profiles, validate: validate, now: core.UTCNow}
}

func (svc *service) Validator() *validator.Validate { return svc.validate }

func (svc *service) Create(ctx context.Context, level Level, nn NewNode) (Node, error) {
	if !level.Valid() {
		return Node{}, core.NewNotFoundError("level")
	}
	if err := nn.Validate(level, svc.validate); err != nil {
		return Node{}, err
	}

	var node Node
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if parent, ok := level.Parent(); ok {
			if _, err := svc.repo.GetNode(ctx, parent, nn.ParentID, false); err != nil {
				if core.IsNotFound(err) {
					return core.NewNotFoundError(string(parent))
				}
				return err
			}
		}
		if err := svc.checkName(ctx, level, nn.Name, ""); err != nil {
			return err
		}

		now := svc.now()
		n := Node{
			Level:     level,
			Name:      nn.Name,
			ParentID:  nn.ParentID,
			Code:      nn.Code,
			Street:    nn.Street,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if level == LevelIsibo {
			n.Members = toMembers(nn.Members)
		}

		var err error
		node, err = svc.repo.CreateNode(ctx, n)
		return err
	})
	if err != nil {
		return Node{}, errors.Wrap(err, "creating location")
	}
	return node, nil
}

func (svc *service) checkName(ctx context.Context, level Level, name, excludeID string) error {
	if !level.UniqueName() {
		return nil
	}
	exists, err := svc.repo.NameExists(ctx, level, name, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return core.NewConflictError("name", ErrNameTaken.Error())
	}
	return nil
}

func (svc *service) Get(ctx context.Context, level Level, id string, unscoped bool) (Node, error) {
	if !level.Valid() {
		return Node{}, core.NewNotFoundError("level")
	}
	n, err := svc.repo.GetNode(ctx, level, id, unscoped)
	if err != nil {
		return Node{}, errors.Wrap(err, "getting location")
	}
	return n, nil
}

func (svc *service) Query(ctx context.Context, level Level, qf QueryFilter, pq core.PageQuery) (core.Page[Node], error) {
	if !level.Valid() {
		return core.Page[Node]{}, core.NewNotFoundError("level")
	}
	qf.Clean()
	pq.Clean()
	page, err := svc.repo.QueryNodes(ctx, level, qf, pq)
	if err != nil {
		return core.Page[Node]{}, errors.Wrap(err, "querying locations")
	}
	return page, nil
}

func (svc *service) Update(ctx context.Context, level Level, id string, un UpdateNode) (Node, error) {
	var node Node
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := svc.repo.GetNode(ctx, level, id, false)
		if err != nil {
			return err
		}
		if err := un.Validate(n, svc.validate); err != nil {
			return err
		}

		if un.Name != nil && *un.Name != n.Name {
			if err := svc.checkName(ctx, level, *un.Name, n.ID); err != nil {
				return err
			}
			n.Name = *un.Name
		}
		if un.Code != nil {
			n.Code = *un.Code
		}
		if un.Street != nil {
			n.Street = *un.Street
		}
		if un.Members != nil {
			n.Members = toMembers(*un.Members)
		}
		n.UpdatedAt = svc.now()

		node, err = svc.repo.UpdateNode(ctx, n)
		return err
	})
	if err != nil {
		return Node{}, errors.Wrap(err, "updating location")
	}
	return node, nil
}

// Delete soft-deletes a node and every live node below it. Leaders lose the matching positions.
func (svc *service) Delete(ctx context.Context, level Level, id string) error {
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := svc.repo.GetNode(ctx, level, id, false)
		if err != nil {
			return err
		}
		return svc.deleteTree(ctx, n, svc.now())
	})
	return errors.Wrap(err, "deleting location")
}

func (svc *service) deleteTree(ctx context.Context, n Node, at time.Time) error {
	if child, ok := n.Level.Child(); ok {
		children, err := svc.repo.ListChildren(ctx, child, n.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := svc.deleteTree(ctx, c, at); err != nil {
				return err
			}
		}
	}
	if n.HasLeader && n.LeaderID != "" {
		if err := svc.profiles.ClearPosition(ctx, n.LeaderID, n.Level, n.ID); err != nil {
			return err
		}
	}
	return svc.repo.DeleteNode(ctx, n.Level, n.ID, at)
}

// AssignLeader makes userID the leader of the node. The previous leader of the node
// and the node previously led by the user at the same level are released.
func (svc *service) AssignLeader(ctx context.Context, level Level, nodeID, userID string) (Node, error) {
	if !level.HasLeader() {
		return Node{}, core.NewValidationError(errNoLeader)
	}

	var node Node
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := svc.repo.GetNode(ctx, level, nodeID, false)
		if err != nil {
			return err
		}
		profileID, err := svc.profiles.EnsureProfile(ctx, userID)
		if err != nil {
			return err
		}

		if n.HasLeader && n.LeaderID != profileID {
			if err := svc.profiles.ClearPosition(ctx, n.LeaderID, level, n.ID); err != nil {
				return err
			}
		}

		prev, err := svc.repo.FindLedBy(ctx, level, profileID)
		switch {
		case err == nil && prev.ID != n.ID:
			if err := svc.repo.SetLeader(ctx, level, prev.ID, ""); err != nil {
				return err
			}
		case err != nil && !core.IsNotFound(err):
			return err
		}

		if err := svc.repo.SetLeader(ctx, level, n.ID, profileID); err != nil {
			return err
		}
		if err := svc.profiles.SetPosition(ctx, profileID, level, n.ID); err != nil {
			return err
		}
		node, err = svc.repo.GetNode(ctx, level, n.ID, false)
		return err
	})
	if err != nil {
		return Node{}, errors.Wrap(err, "assigning leader")
	}
	return node, nil
}

// RemoveLeader releases the leader of the node. It is a no-op on a node without one.
func (svc *service) RemoveLeader(ctx context.Context, level Level, nodeID string) (Node, error) {
	if !level.HasLeader() {
		return Node{}, core.NewValidationError(errNoLeader)
	}

	var node Node
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := svc.repo.GetNode(ctx, level, nodeID, false)
		if err != nil {
			return err
		}
		if !n.HasLeader {
			node = n
			return nil
		}
		if n.LeaderID != "" {
			if err := svc.profiles.ClearPosition(ctx, n.LeaderID, level, n.ID); err != nil {
				return err
			}
		}
		if err := svc.repo.SetLeader(ctx, level, n.ID, ""); err != nil {
			return err
		}
		node, err = svc.repo.GetNode(ctx, level, n.ID, false)
		return err
	})
	if err != nil {
		return Node{}, errors.Wrap(err, "removing leader")
	}
	return node, nil
}

func (svc *service) AssignRepresentative(ctx context.Context, houseID, userID string) (Node, error) {
	return svc.setRepresentative(ctx, houseID, userID)
}

func (svc *service) RemoveRepresentative(ctx context.Context, houseID string) (Node, error) {
	return svc.setRepresentative(ctx, houseID, "")
}

func (svc *service) setRepresentative(ctx context.Context, houseID, userID string) (Node, error) {
	var node Node
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := svc.repo.GetNode(ctx, LevelHouse, houseID, false)
		if err != nil {
			return err
		}
		if userID != "" {
			if err := svc.profiles.UserExists(ctx, userID); err != nil {
				return err
			}
		}
		if err := svc.repo.SetRepresentative(ctx, n.ID, userID); err != nil {
			return err
		}
		node, err = svc.repo.GetNode(ctx, LevelHouse, n.ID, false)
		return err
	})
	if err != nil {
		return Node{}, errors.Wrap(err, "setting house representative")
	}
	return node, nil
}
