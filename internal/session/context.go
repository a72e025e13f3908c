package session

import (
	"strconv"
	"time"
)

// Context is the navigation state of one run.
type Context struct {
	Level     string
	UnitIndex int
	Units     []string
	// TeachingMode is set while recording and cleared while practising.
	TeachingMode bool

	// BustToken is non-empty when cached copies must be refreshed this
	// session.
	BustToken string
}

// NewContext starts a session. An explicit token, or a pending force
// refresh marker in store, activates cache busting; the marker is
// consumed.
func NewContext(store *Store, explicitToken string) (*Context, error) {
	c := &Context{BustToken: explicitToken}
	if store == nil {
		return c, nil
	}

	marked, err := store.ConsumeForceRefresh()
	if err != nil {
		return c, err
	}
	if marked && c.BustToken == "" {
		c.BustToken = BustToken(store.now())
	}
	return c, nil
}

// BustToken derives a fresh token from t.
func BustToken(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

// UnitName returns the current unit's display name, or "".
func (c *Context) UnitName() string {
	if c.UnitIndex < 0 || c.UnitIndex >= len(c.Units) {
		return ""
	}
	return c.Units[c.UnitIndex]
}

// SetLevel switches level and resets the unit selection.
func (c *Context) SetLevel(level string, units []string) {
	c.Level = level
	c.Units = append([]string(nil), units...)
	c.UnitIndex = 0
}

// Restore applies a saved position to a freshly loaded level. The saved
// unit name takes precedence; the index is used only when no name was
// saved and it is in range.
func (c *Context) Restore(pos Position) {
	c.TeachingMode = pos.TeachingMode
	if pos.Level != c.Level {
		return
	}
	c.UnitIndex = 0
	if pos.UnitName != "" {
		for i, name := range c.Units {
			if name == pos.UnitName {
				c.UnitIndex = i
				return
			}
		}
		return
	}
	if pos.UnitIndex >= 0 && pos.UnitIndex < len(c.Units) {
		c.UnitIndex = pos.UnitIndex
	}
}

// Position captures the context for saving.
func (c *Context) Position() Position {
	return Position{
		Level:        c.Level,
		UnitIndex:    c.UnitIndex,
		UnitName:     c.UnitName(),
		TeachingMode: c.TeachingMode,
	}
}

// Next moves to the next unit and reports whether it moved.
func (c *Context) Next() bool {
	if c.UnitIndex+1 >= len(c.Units) {
		return false
	}
	c.UnitIndex++
	return true
}

// Prev moves to the previous unit and reports whether it moved.
func (c *Context) Prev() bool {
	if c.UnitIndex <= 0 {
		return false
	}
	c.UnitIndex--
	return true
}
