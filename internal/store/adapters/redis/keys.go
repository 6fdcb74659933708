package redis

// Esquema de claves. Todo lo tenant-scoped lleva el pool en la clave; los
// índices secundarios son sorted sets (score 0) para poder paginar por
// ZRangeByLex con el mismo contrato keyset del backend relacional.
//
//	pool:{poolId}                          → JSON del pool
//	idx:pools                              → zset de poolIds
//	user:{poolId}:{userId}                 → JSON del user
//	idx:users:{poolId}                     → zset de userIds
//	idx:user_email:{poolId}:{email}        → userId (SetNX reserva unicidad)
//	client:{clientId}                      → JSON del client (clave global)
//	idx:clients                            → zset de clientIds
//	idx:pool_clients:{poolId}              → zset de clientIds del pool
//	group:{poolId}:{groupId}               → JSON del group
//	idx:groups:{poolId}                    → zset de groupIds
//	idx:group_name:{poolId}:{name}         → groupId (SetNX reserva unicidad)
//	idx:group_users:{poolId}:{groupId}     → set de userIds miembros
//	mfa:{poolId}:{userId}:{deviceId}       → JSON del device
//	idx:mfa:{poolId}:{userId}              → zset de deviceIds

func (c *conn) key(parts ...string) string {
	k := parts[0]
	for _, p := range parts[1:] {
		k += ":" + p
	}
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *conn) poolKey(poolID string) string   { return c.key("pool", poolID) }
func (c *conn) poolIdxKey() string             { return c.key("idx", "pools") }
func (c *conn) userKey(poolID, id string) string {
	return c.key("user", poolID, id)
}
func (c *conn) userIdxKey(poolID string) string { return c.key("idx", "users", poolID) }
func (c *conn) emailIdxKey(poolID, email string) string {
	return c.key("idx", "user_email", poolID, email)
}
func (c *conn) clientKey(clientID string) string { return c.key("client", clientID) }
func (c *conn) clientIdxKey() string             { return c.key("idx", "clients") }
func (c *conn) poolClientIdxKey(poolID string) string {
	return c.key("idx", "pool_clients", poolID)
}
func (c *conn) groupKey(poolID, id string) string { return c.key("group", poolID, id) }
func (c *conn) groupIdxKey(poolID string) string  { return c.key("idx", "groups", poolID) }
func (c *conn) groupNameIdxKey(poolID, name string) string {
	return c.key("idx", "group_name", poolID, name)
}
func (c *conn) groupUsersKey(poolID, groupID string) string {
	return c.key("idx", "group_users", poolID, groupID)
}
func (c *conn) mfaKey(poolID, userID, deviceID string) string {
	return c.key("mfa", poolID, userID, deviceID)
}
func (c *conn) mfaIdxKey(poolID, userID string) string {
	return c.key("idx", "mfa", poolID, userID)
}
