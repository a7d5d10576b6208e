package pkginfo

// AppID is the identity against which visibility rules are expressed. All
// packages in a shared user carry the same AppID.
type AppID int

// UserID identifies a tenant on the device.
type UserID int

// UID is a (UserID, AppID) pair flattened into a single integer.
type UID int

const (
	// FirstAppID is the lowest AppID assigned to an installed application.
	// Identities below this threshold belong to the platform and are
	// unconditionally visible.
	FirstAppID AppID = 10000

	// PerUserRange is the size of the UID block reserved for each user.
	PerUserRange = 100000
)

// UIDOf flattens a user and app identity into a UID.
func UIDOf(user UserID, app AppID) UID {
	return UID(int(user)*PerUserRange + int(app))
}

// App returns the AppID portion of the UID.
func (u UID) App() AppID {
	return AppID(int(u) % PerUserRange)
}

// User returns the UserID portion of the UID.
func (u UID) User() UserID {
	return UserID(int(u) / PerUserRange)
}
