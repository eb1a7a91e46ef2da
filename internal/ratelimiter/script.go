package ratelimiter

import "github.com/redis/go-redis/v9"

// admitScript выполняет проверку окна целиком на стороне Redis, поэтому
// параллельные сообщения одного пользователя не могут пройти сверх лимита.
//
// KEYS: ban, window, warning
// ARGV: now_ms, window_ms, capacity, ban_ms, warn_threshold, record(0|1), member
// Ответ: allowed, banned, ban_remaining_ms, remaining, reset_in_ms, warn
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local ban = tonumber(ARGV[4])
local threshold = tonumber(ARGV[5])

local ban_until = tonumber(redis.call("GET", KEYS[1]) or "0")
if ban_until > now then
	return {0, 1, ban_until - now, 0, 0, 0}
end

redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[2])
if count >= capacity then
	redis.call("SET", KEYS[1], now + ban, "PX", ban)
	redis.call("DEL", KEYS[2], KEYS[3])
	return {0, 1, ban, 0, 0, 0}
end

local reset_in = window
local oldest = redis.call("ZRANGE", KEYS[2], 0, 0, "WITHSCORES")
if oldest[2] then
	reset_in = tonumber(oldest[2]) + window - now
end

local warn = 0
if count >= threshold then
	local warn_until = tonumber(redis.call("GET", KEYS[3]) or "0")
	if warn_until <= now then
		warn = 1
		redis.call("SET", KEYS[3], now + window, "PX", window)
	end
end

if ARGV[6] == "1" then
	redis.call("ZADD", KEYS[2], now, ARGV[7])
	redis.call("PEXPIRE", KEYS[2], window)
end

return {1, 0, 0, capacity - count - 1, reset_in, warn}
`)
