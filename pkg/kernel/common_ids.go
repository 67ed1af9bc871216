package kernel

import "github.com/google/uuid"

// ID is an opaque identifier shared by the memory, conversation, and
// document domain types. It is backed by a UUID but always handled as an
// opaque string by callers.
type ID string

// NewID generates a fresh random ID.
func NewID() ID { return ID(uuid.NewString()) }

// ParseID wraps an existing id string. Use this when restoring identifiers
// from storage rather than minting new ones.
func ParseID(id string) ID { return ID(id) }

func (i ID) String() string { return string(i) }
func (i ID) IsEmpty() bool  { return string(i) == "" }

type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

type TenantID string

func NewTenantID(id string) TenantID { return TenantID(id) }
func (t TenantID) String() string    { return string(t) }
func (t TenantID) IsEmpty() bool     { return string(t) == "" }
