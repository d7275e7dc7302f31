// Package session wires up server-side sessions stored in SQLite.
package session

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

// lifetime is how long a login session stays valid without renewal.
const lifetime = 24 * time.Hour

// New returns a session manager persisting to the sessions table of db.
// Cookies are HttpOnly and SameSite=Lax; the Secure flag is dropped in
// development so plain-HTTP localhost logins work.
func New(db *sql.DB, isDev bool) *scs.SessionManager {
	sm := scs.New()
	sm.Store = sqlite3store.New(db)
	sm.Lifetime = lifetime

	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = !isDev

	return sm
}
