// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"encoding/gob"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// Store keeps auth sessions for the monitor's web clients.  Without
// SESSION_KEY a random key is generated, so sessions do not survive a
// restart.
var Store = newCookieStore()

func newCookieStore() *sessions.CookieStore {
	key := os.Getenv("SESSION_KEY")
	if key == "" {
		log.Println("SESSION_KEY not set, sessions will not survive restarts")
		key = uuid.New().String()
	}
	store := sessions.NewCookieStore([]byte(key))
	store.Options.HttpOnly = true
	return store
}

func init() {
	gob.Register(map[string]interface{}{})
}
