// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package dao

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

var (
	openers   = make(map[string]Opener)
	openersMx sync.RWMutex
)

// Register binds a URL scheme to an opener.
func Register(scheme string, o Opener) {
	openersMx.Lock()
	defer openersMx.Unlock()
	openers[scheme] = o
}

// OpenerFor returns the opener registered for scheme.
func OpenerFor(scheme string) (Opener, error) {
	openersMx.RLock()
	defer openersMx.RUnlock()

	o, ok := openers[scheme]
	if !ok {
		return nil, fmt.Errorf("no data source for scheme %q", scheme)
	}

	return o, nil
}

// Schemes returns the registered schemes.
func Schemes() []string {
	openersMx.RLock()
	defer openersMx.RUnlock()

	ss := make([]string, 0, len(openers))
	for s := range openers {
		ss = append(ss, s)
	}
	slices.Sort(ss)

	return ss
}

func open(ctx context.Context, f *Factory, raw string) (Source, error) {
	l, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	o, err := OpenerFor(l.Scheme)
	if err != nil {
		return nil, err
	}

	return o(ctx, f, l)
}
