package location

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

type Level string

// Levels, largest to smallest.
const (
	LevelProvince Level = "province"
	LevelDistrict Level = "district"
	LevelSector   Level = "sector"
	LevelCell     Level = "cell"
	LevelVillage  Level = "village"
	LevelIsibo    Level = "isibo"
	LevelHouse    Level = "house"
)

var Levels = []Level{LevelProvince, LevelDistrict, LevelSector, LevelCell, LevelVillage, LevelIsibo, LevelHouse}

// LeaderLevels are the levels whose nodes can have a leader.
var LeaderLevels = []Level{LevelCell, LevelVillage, LevelIsibo}

func ParseLevel(s string) (Level, bool) {
	l := Level(core.CleanString(s, true /* lower */))
	return l, l.Valid()
}

func (l Level) Valid() bool {
	return l.index() >= 0
}

func (l Level) index() int {
	for i, lvl := range Levels {
		if lvl == l {
			return i
		}
	}
	return -1
}

// Parent returns the owning level; provinces have none.
func (l Level) Parent() (Level, bool) {
	i := l.index()
	if i <= 0 {
		return "", false
	}
	return Levels[i-1], true
}

// Child is the level right below l; houses have none.
func (l Level) Child() (Level, bool) {
	i := l.index()
	if i < 0 || i >= len(Levels)-1 {
		return "", false
	}
	return Levels[i+1], true
}

func (l Level) HasLeader() bool {
	return l == LevelCell || l == LevelVillage || l == LevelIsibo
}

// Plural is the route segment of the level, eg. "isibos".
func (l Level) Plural() string {
	return string(l) + "s"
}

// UniqueName reports whether node names must be unique across the level.
func (l Level) UniqueName() bool {
	return l == LevelProvince || l == LevelCell
}

// Member is an entry of an isibo's roster.
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Node is a location at any level of the hierarchy.
// Tier-specific fields stay empty on the other levels.
type Node struct {
	ID       string `json:"id"`
	Level    Level  `json:"level"`
	Name     string `json:"name,omitempty"`
	ParentID string `json:"parentId,omitempty"`

	// cell, village & isibo
	HasLeader bool   `json:"hasLeader"`
	LeaderID  string `json:"leaderId,omitempty"` // profile ID

	// isibo
	Members []Member `json:"members,omitempty"`

	// house
	Code             string `json:"code,omitempty"`
	Street           string `json:"street,omitempty"`
	RepresentativeID string `json:"representativeId,omitempty"` // user ID

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (n Node) IsDeleted() bool { return n.DeletedAt != nil }

// HasMember reports whether memberID is on the isibo roster.
func (n Node) HasMember(memberID string) bool {
	for _, m := range n.Members {
		if m.ID == memberID {
			return true
		}
	}
	return false
}

func (n Node) Member(memberID string) (Member, bool) {
	for _, m := range n.Members {
		if m.ID == memberID {
			return m, true
		}
	}
	return Member{}, false
}

type MemberInput struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,phone"`
}

func (mi *MemberInput) clean() {
	mi.ID = core.CleanString(mi.ID)
	mi.Name = core.CleanString(mi.Name)
	mi.Email = core.CleanString(mi.Email, true /* lower */)
	mi.Phone = core.CleanString(mi.Phone)
}

// toMembers keeps existing member IDs and generates the missing ones.
func toMembers(inputs []MemberInput) []Member {
	members := make([]Member, 0, len(inputs))
	for _, mi := range inputs {
		id := mi.ID
		if id == "" {
			id = uuid.New().String()
		}
		members = append(members, Member{ID: id, Name: mi.Name, Email: mi.Email, Phone: mi.Phone})
	}
	return members
}

// NewNode contains information needed to create a new Node.
type NewNode struct {
	Name     string        `json:"name"`
	ParentID string        `json:"parentId"`
	Code     string        `json:"code"`
	Street   string        `json:"street"`
	Members  []MemberInput `json:"members" validate:"omitempty,dive"`
}

var (
	errNameRequired   = errors.New("name is required")
	errCodeRequired   = errors.New("code is required")
	errParentRequired = errors.New("parent is required")
	errParentInvalid  = errors.New("provinces have no parent")
	errMembersInvalid = errors.New("only isibos have members")
	errNoLeader       = errors.New("this level has no leader")
)

func (nn *NewNode) Validate(level Level, validate *validator.Validate) error {
	nn.Name = core.CleanString(nn.Name)
	nn.ParentID = core.CleanString(nn.ParentID)
	nn.Code = core.CleanString(nn.Code)
	nn.Street = core.CleanString(nn.Street)
	for i := range nn.Members {
		nn.Members[i].clean()
	}

	if err := validate.Struct(nn); err != nil {
		return err
	}

	var flds []core.FieldError
	if level == LevelHouse {
		if nn.Code == "" {
			flds = append(flds, core.FieldError{Field: "code", Error: errCodeRequired.Error()})
		}
	} else if nn.Name == "" {
		flds = append(flds, core.FieldError{Field: "name", Error: errNameRequired.Error()})
	}
	if _, hasParent := level.Parent(); hasParent && nn.ParentID == "" {
		flds = append(flds, core.FieldError{Field: "parentId", Error: errParentRequired.Error()})
	} else if !hasParent && nn.ParentID != "" {
		flds = append(flds, core.FieldError{Field: "parentId", Error: errParentInvalid.Error()})
	}
	if level != LevelIsibo && len(nn.Members) > 0 {
		flds = append(flds, core.FieldError{Field: "members", Error: errMembersInvalid.Error()})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// UpdateNode defines what information may be provided to modify an existing Node.
// The parent is immutable after creation.
type UpdateNode struct {
	Name    *string        `json:"name"`
	Code    *string        `json:"code"`
	Street  *string        `json:"street"`
	Members *[]MemberInput `json:"members" validate:"omitempty,dive"`
}

func (un *UpdateNode) Validate(orig Node, validate *validator.Validate) error {
	if un.Name != nil {
		name := core.CleanString(*un.Name)
		un.Name = &name
	}
	if un.Code != nil {
		code := core.CleanString(*un.Code)
		un.Code = &code
	}
	if un.Street != nil {
		street := core.CleanString(*un.Street)
		un.Street = &street
	}
	if un.Members != nil {
		for i := range *un.Members {
			(*un.Members)[i].clean()
		}
	}

	if err := validate.Struct(un); err != nil {
		return err
	}

	var flds []core.FieldError
	if un.Name != nil && *un.Name == "" && orig.Level != LevelHouse {
		flds = append(flds, core.FieldError{Field: "name", Error: errNameRequired.Error()})
	}
	if un.Code != nil && *un.Code == "" && orig.Level == LevelHouse {
		flds = append(flds, core.FieldError{Field: "code", Error: errCodeRequired.Error()})
	}
	if un.Members != nil && orig.Level != LevelIsibo {
		flds = append(flds, core.FieldError{Field: "members", Error: errMembersInvalid.Error()})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

type QueryFilter struct {
	ParentID string `query:"parentId"`
}

func (qf *QueryFilter) Clean() {
	qf.ParentID = core.CleanString(qf.ParentID)
}
