// Package redisstore implements vault.PreferenceStore on Redis.
//
// Values live under KeyPrefix+key. Set and Delete run in a MULTI block
// together with a PUBLISH of the key on Channel; Watch subscribes to that
// channel and re-reads the key when it is named. go-redis re-subscribes
// after a dropped connection, but changes made while disconnected are not
// replayed.
package redisstore
