package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/nomad-xyz/nomad-monitor/entity"
	"github.com/nomad-xyz/nomad-monitor/presenter/http/render"
)

type ctxKey int

const (
	txHashCtxKey ctxKey = iota
	messageHashCtxKey
	filterCtxKey
)

func GetTxHashMiddleware(next http.Handler) http.Handler {
	return hashMiddleware("tx", txHashCtxKey, next)
}

func GetMessageHashMiddleware(next http.Handler) http.Handler {
	return hashMiddleware("hash", messageHashCtxKey, next)
}

func hashMiddleware(param string, key ctxKey, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash, err := parseHash(chi.URLParam(r, param))
		if err != nil {
			render.Error(w, r, fmt.Errorf("invalid %s parameter: %w", param, err))
			return
		}
		ctx := context.WithValue(r.Context(), key, hash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TxHash(ctx context.Context) common.Hash {
	hash, _ := ctx.Value(txHashCtxKey).(common.Hash)
	return hash
}

func MessageHash(ctx context.Context) common.Hash {
	hash, _ := ctx.Value(messageHashCtxKey).(common.Hash)
	return hash
}

// GetFilterMiddleware parses origin, destination, sender, recipient, state,
// page and size query parameters into entity.MessagesFilter.
func GetFilterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r.URL.Query())
		if err != nil {
			render.Error(w, r, err)
			return
		}
		if err = filter.Normalize(); err != nil {
			render.Error(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), filterCtxKey, filter)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetFilterContext(ctx context.Context) *entity.MessagesFilter {
	if filter, ok := ctx.Value(filterCtxKey).(*entity.MessagesFilter); ok {
		return filter
	}
	return new(entity.MessagesFilter)
}

func parseFilter(query url.Values) (*entity.MessagesFilter, error) {
	filter := new(entity.MessagesFilter)
	var err error
	if filter.Origin, err = parseDomain(query, "origin"); err != nil {
		return nil, err
	}
	if filter.Destination, err = parseDomain(query, "destination"); err != nil {
		return nil, err
	}
	if filter.Sender, err = parseOptionalHash(query, "sender"); err != nil {
		return nil, err
	}
	if filter.Recipient, err = parseOptionalHash(query, "recipient"); err != nil {
		return nil, err
	}
	if str := query.Get("state"); str != "" {
		state, err2 := entity.ParseMessageState(str)
		if err2 != nil {
			return nil, fmt.Errorf("invalid state parameter: %w", err2)
		}
		filter.State = &state
	}
	if filter.Page, err = parseUint(query, "page"); err != nil {
		return nil, err
	}
	if filter.Size, err = parseUint(query, "size"); err != nil {
		return nil, err
	}
	return filter, nil
}

func parseDomain(query url.Values, name string) (*uint32, error) {
	str := query.Get(name)
	if str == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(str, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter %q: %w", name, str, render.ErrBadRequest)
	}
	res := uint32(n)
	return &res, nil
}

func parseUint(query url.Values, name string) (uint, error) {
	str := query.Get(name)
	if str == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(str, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter %q: %w", name, str, render.ErrBadRequest)
	}
	return uint(n), nil
}

func parseOptionalHash(query url.Values, name string) (*common.Hash, error) {
	str := query.Get(name)
	if str == "" {
		return nil, nil
	}
	hash, err := parseHash(str)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter: %w", name, err)
	}
	return &hash, nil
}

// parseHash accepts 32-byte hex strings and 20-byte addresses, the latter are left padded.
func parseHash(str string) (common.Hash, error) {
	b, err := hexutil.Decode(str)
	if err != nil || (len(b) != common.HashLength && len(b) != common.AddressLength) {
		return common.Hash{}, fmt.Errorf("%q is not a hex hash: %w", str, render.ErrBadRequest)
	}
	return common.BytesToHash(b), nil
}
