// Package inmemdb is a map backed implementation of the repositories, used by tests.
package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/setting"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
)

type DB struct {
	sync.RWMutex

	nodes         map[location.Level]map[string]*location.Node
	users         map[string]*user.User
	profiles      map[string]*user.Profile // {profileID: profile}
	verifications map[string]*user.Verification
	activities    map[string]*activity.Activity
	tasks         map[string]*activity.Task
	reports       map[string]*activity.Report
	settings      map[string]*setting.Setting // {name: setting}
}

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	db := &DB{
		nodes:         make(map[location.Level]map[string]*location.Node, len(location.Levels)),
		users:         make(map[string]*user.User),
		profiles:      make(map[string]*user.Profile),
		verifications: make(map[string]*user.Verification),
		activities:    make(map[string]*activity.Activity),
		tasks:         make(map[string]*activity.Task),
		reports:       make(map[string]*activity.Report),
		settings:      make(map[string]*setting.Setting),
	}
	for _, level := range location.Levels {
		db.nodes[level] = make(map[string]*location.Node)
	}
	return db
}

// WithinTx runs fn directly: every repository call is atomic on its own and there is no rollback.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newID() string { return uuid.New().String() }

// matches reports whether any of fields contains the search term, ignoring case.
func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	for _, f := range fields {
		if core.ContainsFold(f, search) {
			return true
		}
	}
	return false
}

func sortByString[T any](items []T, key func(T) string, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ki, kj := strings.ToLower(key(items[i])), strings.ToLower(key(items[j]))
		if ki == kj {
			return id(items[i]) < id(items[j])
		}
		return ki < kj
	})
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}
