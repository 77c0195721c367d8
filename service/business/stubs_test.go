package business_test

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/service-identity/service/models"
)

// In memory stand-ins for the repository layer so engine behaviour can be
// exercised without a database.

type accountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account

	// When set, ResetPassword also purges this token store, mirroring the
	// transactional behaviour of the real repository.
	tokens *tokenStore
}

func newAccountStore() *accountStore {
	return &accountStore{accounts: make(map[string]*models.Account)}
}

func (s *accountStore) GetByID(_ context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id], nil
}

func (s *accountStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return nil, nil
}

func (s *accountStore) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return nil, nil
}

func (s *accountStore) Save(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == "" {
		account.GenID(ctx)
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *accountStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

func (s *accountStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	account, _ := s.GetByUsername(ctx, username)
	return account != nil, nil
}

func (s *accountStore) EmailExists(ctx context.Context, email string) (bool, error) {
	account, _ := s.GetByEmail(ctx, email)
	return account != nil, nil
}

func (s *accountStore) ResetPassword(_ context.Context, accountID string, passwordHash []byte) error {
	s.mu.Lock()
	if account, ok := s.accounts[accountID]; ok {
		account.PasswordHash = passwordHash
	}
	s.mu.Unlock()

	if s.tokens != nil {
		return s.tokens.PurgeAccount(context.Background(), accountID)
	}
	return nil
}

func (s *accountStore) SwapRecoveryCodes(_ context.Context, accountID, previous, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok || account.TwoFactorRecoveryCodes != previous {
		return false, nil
	}
	account.TwoFactorRecoveryCodes = next
	return true, nil
}

type roleStore struct {
	mu     sync.Mutex
	roles  map[string]*models.Role
	grants map[string][]string // roleID -> permissionIDs

	permissions *permissionStore
	access      *accessStore
}

func newRoleStore() *roleStore {
	return &roleStore{
		roles:  make(map[string]*models.Role),
		grants: make(map[string][]string),
	}
}

func (s *roleStore) GetByID(_ context.Context, id string) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[id], nil
}

func (s *roleStore) GetByName(_ context.Context, name string) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, nil
}

func (s *roleStore) List(_ context.Context) ([]*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := make([]*models.Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, role)
	}
	return roles, nil
}

func (s *roleStore) Save(ctx context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == "" {
		role.GenID(ctx)
	}
	s.roles[role.ID] = role
	return nil
}

func (s *roleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, id)
	delete(s.grants, id)
	return nil
}

func (s *roleStore) Permissions(_ context.Context, roleID string) ([]*models.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var perms []*models.Permission
	for _, permissionID := range s.grants[roleID] {
		if perm := s.permissions.get(permissionID); perm != nil {
			perms = append(perms, perm)
		}
	}
	return perms, nil
}

func (s *roleStore) GrantPermission(_ context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.grants[roleID] {
		if existing == permissionID {
			return nil
		}
	}
	s.grants[roleID] = append(s.grants[roleID], permissionID)
	return nil
}

func (s *roleStore) RevokePermission(_ context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants := s.grants[roleID]
	for i, existing := range grants {
		if existing == permissionID {
			s.grants[roleID] = append(grants[:i], grants[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *roleStore) SyncPermissions(_ context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

func (s *roleStore) AccountCount(_ context.Context, roleID string) (int64, error) {
	if s.access == nil {
		return 0, nil
	}
	s.access.mu.Lock()
	defer s.access.mu.Unlock()
	var count int64
	for _, roleIDs := range s.access.roles {
		for _, held := range roleIDs {
			if held == roleID {
				count++
			}
		}
	}
	return count, nil
}

func (s *roleStore) grantCount(permissionID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, permissionIDs := range s.grants {
		for _, granted := range permissionIDs {
			if granted == permissionID {
				count++
			}
		}
	}
	return count
}

type permissionStore struct {
	mu          sync.Mutex
	permissions map[string]*models.Permission

	roles  *roleStore
	access *accessStore
}

func newPermissionStore() *permissionStore {
	return &permissionStore{permissions: make(map[string]*models.Permission)}
}

func (s *permissionStore) get(id string) *models.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissions[id]
}

func (s *permissionStore) GetByID(_ context.Context, id string) (*models.Permission, error) {
	return s.get(id), nil
}

func (s *permissionStore) GetByName(_ context.Context, name string) (*models.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, permission := range s.permissions {
		if permission.Name == name {
			return permission, nil
		}
	}
	return nil, nil
}

func (s *permissionStore) List(_ context.Context) ([]*models.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	permissions := make([]*models.Permission, 0, len(s.permissions))
	for _, permission := range s.permissions {
		permissions = append(permissions, permission)
	}
	return permissions, nil
}

func (s *permissionStore) Save(ctx context.Context, permission *models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if permission.ID == "" {
		permission.GenID(ctx)
	}
	s.permissions[permission.ID] = permission
	return nil
}

func (s *permissionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.permissions, id)
	return nil
}

func (s *permissionStore) ReferenceCount(_ context.Context, permissionID string) (int64, error) {
	var count int64
	if s.roles != nil {
		count += s.roles.grantCount(permissionID)
	}
	if s.access != nil {
		s.access.mu.Lock()
		for _, permissionIDs := range s.access.directGrants {
			for _, granted := range permissionIDs {
				if granted == permissionID {
					count++
				}
			}
		}
		s.access.mu.Unlock()
	}
	return count, nil
}

type accessStore struct {
	mu           sync.Mutex
	roles        map[string][]string // accountID -> roleIDs
	directGrants map[string][]string // accountID -> permissionIDs

	roleStore   *roleStore
	permissions *permissionStore
}

func newAccessStore() *accessStore {
	return &accessStore{
		roles:        make(map[string][]string),
		directGrants: make(map[string][]string),
	}
}

// fixtures wires the in memory stores together the way the real
// repositories share a database.
type fixtures struct {
	accounts    *accountStore
	roles       *roleStore
	permissions *permissionStore
	access      *accessStore
	keys        *keyStore
	identities  *identityStore
	events      *eventStore
	tokens      *tokenStore
}

func newFixtures() *fixtures {
	accounts := newAccountStore()
	permissions := newPermissionStore()
	roles := newRoleStore()
	access := newAccessStore()
	tokens := newTokenStore()

	roles.permissions = permissions
	roles.access = access
	access.roleStore = roles
	access.permissions = permissions
	permissions.roles = roles
	permissions.access = access
	accounts.tokens = tokens

	return &fixtures{
		accounts:    accounts,
		roles:       roles,
		permissions: permissions,
		access:      access,
		keys:        newKeyStore(),
		identities:  newIdentityStore(accounts, access),
		events:      newEventStore(),
		tokens:      tokens,
	}
}

func (s *accessStore) Roles(_ context.Context, accountID string) ([]*models.Role, error) {
	s.mu.Lock()
	roleIDs := append([]string(nil), s.roles[accountID]...)
	s.mu.Unlock()

	var roles []*models.Role
	for _, roleID := range roleIDs {
		if s.roleStore != nil {
			if role, _ := s.roleStore.GetByID(context.Background(), roleID); role != nil {
				roles = append(roles, role)
			}
		}
	}
	return roles, nil
}

func (s *accessStore) DirectPermissions(_ context.Context, accountID string) ([]*models.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var permissions []*models.Permission
	for _, permissionID := range s.directGrants[accountID] {
		if perm := s.permissions.get(permissionID); perm != nil {
			permissions = append(permissions, perm)
		}
	}
	return permissions, nil
}

func (s *accessStore) AssignRole(_ context.Context, accountID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, held := range s.roles[accountID] {
		if held == roleID {
			return nil
		}
	}
	s.roles[accountID] = append(s.roles[accountID], roleID)
	return nil
}

func (s *accessStore) RemoveRole(_ context.Context, accountID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.roles[accountID]
	for i, existing := range held {
		if existing == roleID {
			s.roles[accountID] = append(held[:i], held[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *accessStore) GrantPermission(_ context.Context, accountID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, granted := range s.directGrants[accountID] {
		if granted == permissionID {
			return nil
		}
	}
	s.directGrants[accountID] = append(s.directGrants[accountID], permissionID)
	return nil
}

func (s *accessStore) RevokePermission(_ context.Context, accountID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	granted := s.directGrants[accountID]
	for i, existing := range granted {
		if existing == permissionID {
			s.directGrants[accountID] = append(granted[:i], granted[i+1:]...)
			return nil
		}
	}
	return nil
}

type keyStore struct {
	mu   sync.Mutex
	keys map[string]*models.APIKey
}

func newKeyStore() *keyStore {
	return &keyStore{keys: make(map[string]*models.APIKey)}
}

func (s *keyStore) GetByID(_ context.Context, id string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[id], nil
}

func (s *keyStore) GetByIDAndAccount(_ context.Context, id, accountID string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok || key.AccountID != accountID {
		return nil, nil
	}
	return key, nil
}

func (s *keyStore) GetActiveByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*models.APIKey
	for _, key := range s.keys {
		if key.Prefix == prefix && key.Active {
			matches = append(matches, key)
		}
	}
	return matches, nil
}

func (s *keyStore) ListByAccount(_ context.Context, accountID string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []*models.APIKey
	for _, key := range s.keys {
		if key.AccountID == accountID {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *keyStore) CountLiveByAccount(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	now := time.Now()
	for _, key := range s.keys {
		if key.AccountID == accountID && key.IsLive(now) {
			count++
		}
	}
	return count, nil
}

func (s *keyStore) Save(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.ID == "" {
		key.GenID(ctx)
	}
	s.keys[key.ID] = key
	return nil
}

func (s *keyStore) RecordUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.keys[id]; ok {
		key.UsageCount++
		now := time.Now()
		key.LastUsedAt = &now
	}
	return nil
}

func (s *keyStore) Delete(_ context.Context, id, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.keys[id]; ok && key.AccountID == accountID {
		delete(s.keys, id)
	}
	return nil
}

type identityStore struct {
	mu    sync.Mutex
	links []*models.ExternalIdentity

	accounts *accountStore
	access   *accessStore
}

func newIdentityStore(accounts *accountStore, access *accessStore) *identityStore {
	return &identityStore{accounts: accounts, access: access}
}

func (s *identityStore) GetByProviderSubject(_ context.Context, provider, subjectID string) (*models.ExternalIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range s.links {
		if link.Provider == provider && link.SubjectID == subjectID {
			return link, nil
		}
	}
	return nil, nil
}

func (s *identityStore) GetByAccountProvider(_ context.Context, accountID, provider string) (*models.ExternalIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range s.links {
		if link.AccountID == accountID && link.Provider == provider {
			return link, nil
		}
	}
	return nil, nil
}

func (s *identityStore) ListByAccount(_ context.Context, accountID string) ([]*models.ExternalIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var links []*models.ExternalIdentity
	for _, link := range s.links {
		if link.AccountID == accountID {
			links = append(links, link)
		}
	}
	return links, nil
}

func (s *identityStore) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	links, _ := s.ListByAccount(ctx, accountID)
	return int64(len(links)), nil
}

func (s *identityStore) Save(ctx context.Context, identity *models.ExternalIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity.ID == "" {
		identity.GenID(ctx)
		s.links = append(s.links, identity)
		return nil
	}
	for i, link := range s.links {
		if link.ID == identity.ID {
			s.links[i] = identity
			return nil
		}
	}
	s.links = append(s.links, identity)
	return nil
}

func (s *identityStore) Delete(_ context.Context, accountID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, link := range s.links {
		if link.AccountID == accountID && link.Provider == provider {
			s.links = append(s.links[:i], s.links[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *identityStore) CreateAccountWithLink(ctx context.Context, account *models.Account, identity *models.ExternalIdentity, defaultRoleID string) error {
	if err := s.accounts.Save(ctx, account); err != nil {
		return err
	}
	identity.AccountID = account.ID
	if err := s.Save(ctx, identity); err != nil {
		return err
	}
	if defaultRoleID != "" && s.access != nil {
		return s.access.AssignRole(ctx, account.ID, defaultRoleID)
	}
	return nil
}

type eventStore struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func newEventStore() *eventStore {
	return &eventStore{}
}

func (s *eventStore) GetByID(_ context.Context, id string) (*models.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.ID == id {
			return event, nil
		}
	}
	return nil, nil
}

func (s *eventStore) Save(ctx context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.GenID(ctx)
	}
	s.events = append(s.events, event)
	return nil
}

func (s *eventStore) ListByAccount(_ context.Context, accountID string, limit int) ([]*models.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*models.SecurityEvent
	for _, event := range s.events {
		if event.AccountID == accountID {
			events = append(events, event)
		}
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *eventStore) ListByRiskLevel(_ context.Context, riskLevel string, limit int) ([]*models.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*models.SecurityEvent
	for _, event := range s.events {
		if event.RiskLevel == riskLevel {
			events = append(events, event)
		}
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *eventStore) ListUnresolved(_ context.Context, limit int) ([]*models.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*models.SecurityEvent
	for _, event := range s.events {
		if event.RequiresAction && event.ResolvedAt == nil {
			events = append(events, event)
		}
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *eventStore) MarkResolved(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.ID == id {
			if event.ResolvedAt != nil {
				return false, nil
			}
			now := time.Now()
			event.ResolvedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (s *eventStore) byType(eventType string) []*models.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*models.SecurityEvent
	for _, event := range s.events {
		if event.EventType == eventType {
			events = append(events, event)
		}
	}
	return events
}

type tokenStore struct {
	mu       sync.Mutex
	tokens   map[string]*models.AccessToken
	sessions map[string]*models.Session
}

func newTokenStore() *tokenStore {
	return &tokenStore{
		tokens:   make(map[string]*models.AccessToken),
		sessions: make(map[string]*models.Session),
	}
}

func (s *tokenStore) GetByID(_ context.Context, id string) (*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[id], nil
}

func (s *tokenStore) Save(ctx context.Context, token *models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.ID == "" {
		token.GenID(ctx)
	}
	s.tokens[token.ID] = token
	return nil
}

func (s *tokenStore) Consume(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return false, nil
	}
	delete(s.tokens, id)
	return true, nil
}

func (s *tokenStore) DeleteWithSession(_ context.Context, id, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.tokens[id]; ok && token.AccountID == accountID {
		delete(s.tokens, id)
	}
	for sessionID, session := range s.sessions {
		if session.AccessTokenID == id {
			delete(s.sessions, sessionID)
		}
	}
	return nil
}

func (s *tokenStore) PurgeAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, token := range s.tokens {
		if token.AccountID == accountID {
			delete(s.tokens, id)
		}
	}
	for id, session := range s.sessions {
		if session.AccountID == accountID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *tokenStore) TouchActivity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.tokens[id]; ok {
		now := time.Now()
		token.LastActivityAt = &now
	}
	return nil
}

func (s *tokenStore) SaveSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.GenID(ctx)
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *tokenStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id], nil
}

func (s *tokenStore) ListActiveSessions(_ context.Context, accountID string) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sessions []*models.Session
	now := time.Now()
	for _, session := range s.sessions {
		if session.AccountID == accountID && session.ExpiresAt.After(now) {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (s *tokenStore) DeleteSession(_ context.Context, id, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.AccountID != accountID {
		return nil
	}
	delete(s.sessions, id)
	delete(s.tokens, session.AccessTokenID)
	return nil
}
