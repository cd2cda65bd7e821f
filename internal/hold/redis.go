package hold

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// Every showing is one hash {prefix}:{showingID}; each field is a seat id
// and each value is "createdMs|expiresMs|saleID|sessionID".  expiresMs is
// 0 for seats committed to a sale.  Multi-seat checks and writes run as a
// single Lua script so they are atomic on the server.

const luaHelpers = `
local function parse(v)
  if not v then return nil end
  local c, e, s, o = string.match(v, '^(%d+)|(%d+)|([^|]*)|(.*)$')
  if not c then return nil end
  return tonumber(c), tonumber(e), s, o
end
local function live(e, now) return e == 0 or e > now end
local function num(n) return string.format('%.0f', n) end
`

// KEYS[1]=hash ARGV: now, ttlMs, session, seats...
var acquireScript = redis.NewScript(luaHelpers + `
local now, ttl, owner = tonumber(ARGV[1]), tonumber(ARGV[2]), ARGV[3]
local taken = {}
for i = 4, #ARGV do
  local c, e, s, o = parse(redis.call('HGET', KEYS[1], ARGV[i]))
  if c and live(e, now) and (e == 0 or o ~= owner) then
    table.insert(taken, ARGV[i])
  end
end
if #taken > 0 then
  table.insert(taken, 1, 'conflict')
  return taken
end
local val = num(now) .. '|' .. num(now + ttl) .. '||' .. owner
for i = 4, #ARGV do
  redis.call('HSET', KEYS[1], ARGV[i], val)
end
return {'ok'}
`)

// KEYS[1]=hash ARGV: now, session, seats...
var releaseScript = redis.NewScript(luaHelpers + `
local now, owner = tonumber(ARGV[1]), ARGV[2]
local n = 0
for i = 3, #ARGV do
  local c, e, s, o = parse(redis.call('HGET', KEYS[1], ARGV[i]))
  if c and e ~= 0 and o == owner then
    redis.call('HDEL', KEYS[1], ARGV[i])
    n = n + 1
  end
end
return n
`)

// KEYS[1]=hash ARGV: now, additionalMs, maxTotalMs, session, seats...
var extendScript = redis.NewScript(luaHelpers + `
local now, add, maxTotal, owner = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), ARGV[4]
local expired, limit
for i = 5, #ARGV do
  local c, e, s, o = parse(redis.call('HGET', KEYS[1], ARGV[i]))
  if not c or not live(e, now) then
    expired = expired or ARGV[i]
  elseif e == 0 or o ~= owner then
    return {'not_owner', ARGV[i]}
  elseif e + add > c + maxTotal then
    limit = limit or ARGV[i]
  end
end
if expired then return {'expired', expired} end
if limit then return {'limit', limit} end
local earliest
for i = 5, #ARGV do
  local c, e, s, o = parse(redis.call('HGET', KEYS[1], ARGV[i]))
  local ne = e + add
  redis.call('HSET', KEYS[1], ARGV[i], num(c) .. '|' .. num(ne) .. '|' .. s .. '|' .. o)
  if not earliest or ne < earliest then earliest = ne end
end
return {'ok', num(earliest)}
`)

// KEYS[1]=hash ARGV: now, saleID, session, seats...
var commitScript = redis.NewScript(luaHelpers + `
local now, sale, owner = tonumber(ARGV[1]), ARGV[2], ARGV[3]
local lost = {}
local deadline
for i = 4, #ARGV do
  local c, e, s, o = parse(redis.call('HGET', KEYS[1], ARGV[i]))
  if not c or not live(e, now) or e == 0 or o ~= owner then
    table.insert(lost, ARGV[i])
  elseif not deadline or e < deadline then
    deadline = e
  end
end
if #lost > 0 then
  table.insert(lost, 1, 'conflict')
  return lost
end
for i = 4, #ARGV do
  local c, e, s, o = parse(redis.call('HGET', KEYS[1], ARGV[i]))
  redis.call('HSET', KEYS[1], ARGV[i], num(c) .. '|0|' .. sale .. '|' .. o)
end
return {'ok', num(deadline)}
`)

// KEYS[1]=hash ARGV: expiresMs, saleID, session, seats...
var revertScript = redis.NewScript(luaHelpers + `
local exp, sale, owner = ARGV[1], ARGV[2], ARGV[3]
for i = 4, #ARGV do
  local c, e, s, o = parse(redis.call('HGET', KEYS[1], ARGV[i]))
  if c and e == 0 and s == sale then
    redis.call('HSET', KEYS[1], ARGV[i], num(c) .. '|' .. exp .. '||' .. owner)
  end
end
return 'ok'
`)

// KEYS[1]=hash ARGV: saleID, seats...
var releaseSaleScript = redis.NewScript(luaHelpers + `
local sale = ARGV[1]
for i = 2, #ARGV do
  local c, e, s, o = parse(redis.call('HGET', KEYS[1], ARGV[i]))
  if c and e == 0 and s == sale then
    redis.call('HDEL', KEYS[1], ARGV[i])
  end
end
return 'ok'
`)

// KEYS[1]=hash ARGV: pairs of seat, observed value.  Deletes a field only
// if it still holds the stale value that was read.
var purgeScript = redis.NewScript(`
local n = 0
for i = 1, #ARGV, 2 do
  if redis.call('HGET', KEYS[1], ARGV[i]) == ARGV[i + 1] then
    redis.call('HDEL', KEYS[1], ARGV[i])
    n = n + 1
  end
end
return n
`)

// RedisStore shares holds between every instance of the service.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a store keeping one hash per showing under prefix.
func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "holds"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

// WithClock replaces the time source.  Tests only.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func (s *RedisStore) key(showingID uint64) string {
	return fmt.Sprintf("%s:%d", s.prefix, showingID)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("hold store %s: %v: %w", op, err, apperr.ErrUnavailable)
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMs(v int64) time.Time { return time.UnixMilli(v).UTC() }

func seatArgs(head []interface{}, seatIDs []uint64) []interface{} {
	args := make([]interface{}, 0, len(head)+len(seatIDs))
	args = append(args, head...)
	for _, id := range seatIDs {
		args = append(args, strconv.FormatUint(id, 10))
	}
	return args
}

func parseIDs(ss []string) []uint64 {
	out := make([]uint64, 0, len(ss))
	for _, v := range ss {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// record is the decoded form of a hash value.
type record struct {
	createdMs int64
	expiresMs int64
	saleID    string
	sessionID string
}

func parseRecord(v string) (record, bool) {
	parts := strings.SplitN(v, "|", 4)
	if len(parts) != 4 {
		return record{}, false
	}
	c, err1 := strconv.ParseInt(parts[0], 10, 64)
	e, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return record{}, false
	}
	return record{createdMs: c, expiresMs: e, saleID: parts[2], sessionID: parts[3]}, true
}

func (r record) committed() bool { return r.expiresMs == 0 }
func (r record) live(nowMs int64) bool { return r.committed() || r.expiresMs > nowMs }
func (r record) ownedBy(sid string) bool { return !r.committed() && r.sessionID == sid }

func (s *RedisStore) TryAcquire(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string, ttl time.Duration) (model.SeatHold, error) {
	now := s.now()
	args := seatArgs([]interface{}{ms(now), ttl.Milliseconds(), sessionID}, seatIDs)
	res, err := acquireScript.Run(ctx, s.rdb, []string{s.key(showingID)}, args...).StringSlice()
	if err != nil {
		return model.SeatHold{}, unavailable("acquire", err)
	}
	if len(res) > 0 && res[0] == "conflict" {
		return model.SeatHold{}, apperr.NewConflict(parseIDs(res[1:]))
	}
	created := fromMs(ms(now))
	return model.SeatHold{
		ShowingID: showingID,
		SeatIDs:   append([]uint64(nil), seatIDs...),
		SessionID: sessionID,
		ExpiresAt: fromMs(ms(now) + ttl.Milliseconds()),
		CreatedAt: created,
	}, nil
}

func (s *RedisStore) Release(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string) error {
	args := seatArgs([]interface{}{ms(s.now()), sessionID}, seatIDs)
	if err := releaseScript.Run(ctx, s.rdb, []string{s.key(showingID)}, args...).Err(); err != nil {
		return unavailable("release", err)
	}
	return nil
}

func (s *RedisStore) Extend(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string, additional, maxTotal time.Duration) (time.Time, error) {
	args := seatArgs([]interface{}{ms(s.now()), additional.Milliseconds(), maxTotal.Milliseconds(), sessionID}, seatIDs)
	res, err := extendScript.Run(ctx, s.rdb, []string{s.key(showingID)}, args...).StringSlice()
	if err != nil {
		return time.Time{}, unavailable("extend", err)
	}
	if len(res) != 2 {
		return time.Time{}, unavailable("extend", fmt.Errorf("unexpected reply %v", res))
	}
	switch res[0] {
	case "ok":
		v, err := strconv.ParseInt(res[1], 10, 64)
		if err != nil {
			return time.Time{}, unavailable("extend", err)
		}
		return fromMs(v), nil
	case "not_owner":
		return time.Time{}, fmt.Errorf("seat %s: %w", res[1], apperr.ErrNotOwner)
	case "expired":
		return time.Time{}, fmt.Errorf("seat %s: %w", res[1], apperr.ErrHoldExpired)
	default:
		return time.Time{}, fmt.Errorf("seat %s: %w", res[1], apperr.ErrExtendLimit)
	}
}

func (s *RedisStore) Snapshot(ctx context.Context, showingID uint64, sessionID string) (Snapshot, error) {
	key := s.key(showingID)
	all, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Snapshot{}, unavailable("snapshot", err)
	}
	nowMs := ms(s.now())
	var snap Snapshot
	var stale []interface{}
	for field, v := range all {
		id, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			continue
		}
		r, ok := parseRecord(v)
		if !ok || !r.live(nowMs) {
			stale = append(stale, field, v)
			continue
		}
		switch {
		case r.committed():
			snap.Committed = append(snap.Committed, id)
		case r.sessionID == sessionID:
			snap.HeldBySelf = append(snap.HeldBySelf, SeatExpiry{SeatID: id, ExpiresAt: fromMs(r.expiresMs)})
		default:
			snap.HeldByOther = append(snap.HeldByOther, SeatExpiry{SeatID: id, ExpiresAt: fromMs(r.expiresMs)})
		}
	}
	if len(stale) > 0 {
		if err := purgeScript.Run(ctx, s.rdb, []string{key}, stale...).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("hold store: purge failed")
		}
	}
	sortExpiries(snap.HeldBySelf)
	sortExpiries(snap.HeldByOther)
	sortIDs(snap.Committed)
	return snap, nil
}

func (s *RedisStore) VerifyOwnership(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID string) (map[uint64]bool, error) {
	fields := make([]string, len(seatIDs))
	for i, id := range seatIDs {
		fields[i] = strconv.FormatUint(id, 10)
	}
	vals, err := s.rdb.HMGet(ctx, s.key(showingID), fields...).Result()
	if err != nil {
		return nil, unavailable("verify", err)
	}
	nowMs := ms(s.now())
	out := make(map[uint64]bool, len(seatIDs))
	for i, id := range seatIDs {
		out[id] = false
		if i >= len(vals) {
			continue
		}
		v, ok := vals[i].(string)
		if !ok {
			continue
		}
		if r, ok := parseRecord(v); ok && r.live(nowMs) && r.ownedBy(sessionID) {
			out[id] = true
		}
	}
	return out, nil
}

func (s *RedisStore) Commit(ctx context.Context, showingID uint64, seatIDs []uint64, sessionID, saleID string) (time.Time, error) {
	args := seatArgs([]interface{}{ms(s.now()), saleID, sessionID}, seatIDs)
	res, err := commitScript.Run(ctx, s.rdb, []string{s.key(showingID)}, args...).StringSlice()
	if err != nil {
		return time.Time{}, unavailable("commit", err)
	}
	if len(res) > 0 && res[0] == "conflict" {
		return time.Time{}, apperr.NewConflict(parseIDs(res[1:]))
	}
	if len(res) != 2 {
		return time.Time{}, unavailable("commit", fmt.Errorf("unexpected reply %v", res))
	}
	v, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return time.Time{}, unavailable("commit", err)
	}
	return fromMs(v), nil
}

func (s *RedisStore) Revert(ctx context.Context, showingID uint64, seatIDs []uint64, saleID, sessionID string, expiresAt time.Time) error {
	args := seatArgs([]interface{}{ms(expiresAt), saleID, sessionID}, seatIDs)
	if err := revertScript.Run(ctx, s.rdb, []string{s.key(showingID)}, args...).Err(); err != nil {
		return unavailable("revert", err)
	}
	return nil
}

func (s *RedisStore) ReleaseSale(ctx context.Context, showingID uint64, seatIDs []uint64, saleID string) error {
	args := seatArgs([]interface{}{saleID}, seatIDs)
	if err := releaseSaleScript.Run(ctx, s.rdb, []string{s.key(showingID)}, args...).Err(); err != nil {
		return unavailable("release sale", err)
	}
	return nil
}

func (s *RedisStore) Restore(ctx context.Context, showingID uint64, seatIDs []uint64, saleID string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	val := fmt.Sprintf("%d|0|%s|", ms(s.now()), saleID)
	values := make([]interface{}, 0, 2*len(seatIDs))
	for _, id := range seatIDs {
		values = append(values, strconv.FormatUint(id, 10), val)
	}
	if err := s.rdb.HSet(ctx, s.key(showingID), values...).Err(); err != nil {
		return unavailable("restore", err)
	}
	return nil
}
