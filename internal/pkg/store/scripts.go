package store

// bookDeliveryScript books one unit of a day's delivery capacity for a session.
//
// KEYS[1] booking key for the session, KEYS[2] capacity key for the day.
// ARGV[1] the day being booked, ARGV[2] capacity used when the day is unopened.
//
// Returns 2 when the session already holds a booking, 1 when a new booking was
// made and 0 when the day is full.
const bookDeliveryScript = `
local booking = KEYS[1]
local capacity = KEYS[2]

if redis.call('exists', booking) == 1 then
    return 2
end

local current = redis.call('get', capacity)
if current == false then
    redis.call('set', capacity, ARGV[2])
    current = ARGV[2]
end

if tonumber(current) < 1 then
    return 0
end

redis.call('decr', capacity)
redis.call('set', booking, ARGV[1])
return 1
`
