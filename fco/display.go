package fco

import (
	"encoding/base64"
	"encoding/hex"
	"os/user"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const displayCacheSize = 512

// PropDisplayer renders property values for people. It remembers the user and
// group names seen at capture time so a report read on another host still
// shows them.
type PropDisplayer struct {
	HexDigests bool
	Users      map[int64]string
	Groups     map[int64]string

	mu          sync.Mutex
	userCache   *lru.Cache[int64, string]
	groupCache  *lru.Cache[int64, string]
	lookupUser  func(uid string) (string, error)
	lookupGroup func(gid string) (string, error)
}

func NewPropDisplayer() *PropDisplayer {
	users, _ := lru.New[int64, string](displayCacheSize)
	groups, _ := lru.New[int64, string](displayCacheSize)
	return &PropDisplayer{
		Users:      map[int64]string{},
		Groups:     map[int64]string{},
		userCache:  users,
		groupCache: groups,
		lookupUser: func(uid string) (string, error) {
			u, err := user.LookupId(uid)
			if err != nil {
				return "", err
			}
			return u.Username, nil
		},
		lookupGroup: func(gid string) (string, error) {
			g, err := user.LookupGroupId(gid)
			if err != nil {
				return "", err
			}
			return g.Name, nil
		},
	}
}

// Remember records the owner and group names of o.
func (d *PropDisplayer) Remember(o *Object) {
	if d == nil || o == nil {
		return
	}
	if v, ok := o.Props.Get(PropUID); ok {
		id := int64(v.(IntValue))
		if name := d.resolve(id, d.userCache, d.lookupUser); name != "" {
			d.mu.Lock()
			d.Users[id] = name
			d.mu.Unlock()
		}
	}
	if v, ok := o.Props.Get(PropGID); ok {
		id := int64(v.(IntValue))
		if name := d.resolve(id, d.groupCache, d.lookupGroup); name != "" {
			d.mu.Lock()
			d.Groups[id] = name
			d.mu.Unlock()
		}
	}
}

func (d *PropDisplayer) resolve(id int64, cache *lru.Cache[int64, string], lookup func(string) (string, error)) string {
	if cache == nil || lookup == nil {
		return ""
	}
	if name, ok := cache.Get(id); ok {
		return name
	}
	name, err := lookup(strconv.FormatInt(id, 10))
	if err != nil {
		name = ""
	}
	cache.Add(id, name)
	return name
}

// Merge copies remembered names from other.
func (d *PropDisplayer) Merge(other *PropDisplayer) {
	if d == nil || other == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, name := range other.Users {
		d.Users[id] = name
	}
	for id, name := range other.Groups {
		d.Groups[id] = name
	}
}

// Format renders v as shown in reports.
func (d *PropDisplayer) Format(p Prop, v Value) string {
	if v == nil {
		return "---"
	}
	switch p {
	case PropUID, PropGID:
		id := int64(v.(IntValue))
		if d != nil {
			names := d.Users
			if p == PropGID {
				names = d.Groups
			}
			d.mu.Lock()
			name, ok := names[id]
			d.mu.Unlock()
			if ok {
				return name + " (" + strconv.FormatInt(id, 10) + ")"
			}
		}
		return strconv.FormatInt(id, 10)
	}
	if b, ok := v.(BytesValue); ok {
		if d != nil && d.HexDigests {
			return hex.EncodeToString(b)
		}
		return base64.StdEncoding.EncodeToString(b)
	}
	return v.String()
}
