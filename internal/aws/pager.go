// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package aws

import (
	"context"
	"sync"

	"github.com/a1s/gridsource/internal/datasource"
)

// DefaultPageSize bounds the number of items requested per list call.
const DefaultPageSize = 100

// listFunc lists one page starting at token. A nil next token ends the
// listing.
type listFunc func(ctx context.Context, token *string, limit int32) (rr []datasource.Record, next *string, err error)

// tokenPager serves offset based reads over a continuation token API. The
// token reaching each page boundary is remembered so later reads resume
// from the closest known page instead of relisting.
type tokenPager struct {
	list     listFunc
	pageSize int
	tokens   map[int]*string
	mx       sync.Mutex
}

func newTokenPager(list listFunc, pageSize int) *tokenPager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &tokenPager{
		list:     list,
		pageSize: pageSize,
		tokens:   make(map[int]*string),
	}
}

// count walks the whole listing and resets the known tokens.
func (p *tokenPager) count(ctx context.Context) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	clear(p.tokens)
	var (
		n     int
		token *string
	)
	for {
		rr, next, err := p.list(ctx, token, int32(p.pageSize))
		if err != nil {
			return 0, err
		}
		n += len(rr)
		if next == nil {
			return n, nil
		}
		p.tokens[n] = next
		token = next
	}
}

// fetch returns up to limit records starting at offset.
func (p *tokenPager) fetch(ctx context.Context, offset, limit int) ([]datasource.Record, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	at, token := p.resume(offset)
	out := make([]datasource.Record, 0, limit)
	end := offset + limit
	for at < end {
		rr, next, err := p.list(ctx, token, int32(p.pageSize))
		if err != nil {
			return nil, err
		}
		for i, r := range rr {
			if pos := at + i; pos >= offset && pos < end {
				out = append(out, r)
			}
		}
		at += len(rr)
		if next == nil {
			break
		}
		p.tokens[at] = next
		token = next
	}

	return out, nil
}

func (p *tokenPager) resume(offset int) (int, *string) {
	var (
		at    int
		token *string
	)
	for o, t := range p.tokens {
		if o <= offset && o > at {
			at, token = o, t
		}
	}

	return at, token
}
