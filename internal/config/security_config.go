package config

type SecurityLevel int

const (
	SecurityPublic     SecurityLevel = iota // No authentication
	SecurityAccess                          // Access token required
	SecuritySettlement                      // Payment gateway settlement token required
)

// EndpointSecurityConfig maps route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Operational - Public
	"Healthz": SecurityPublic,
	"Metrics": SecurityPublic,

	// Users - Access Protected
	"RegisterUser":        SecurityAccess,
	"GetUser":             SecurityAccess,
	"GetUserTransactions": SecurityAccess,
	"GetDashboard":        SecurityAccess,

	// Groups - Access Protected
	"CreateGroup":       SecurityAccess,
	"ListMyGroups":      SecurityAccess,
	"GetGroup":          SecurityAccess,
	"JoinGroup":         SecurityAccess,
	"Contribute":        SecurityAccess,
	"WithdrawPayout":    SecurityAccess,
	"AdvanceGroupCycle": SecurityAccess,

	// Wallet - Access Protected
	"Deposit":  SecurityAccess,
	"Withdraw": SecurityAccess,

	// Notifications - Access Protected
	"ListNotifications":    SecurityAccess,
	"MarkNotificationRead": SecurityAccess,

	// Settlements - Gateway only
	"ConfirmSettlement": SecuritySettlement,
}

// GetSecurityLevel returns the required security level for a route.
// Unknown routes require an access token.
func GetSecurityLevel(route string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[route]; ok {
		return level
	}
	return SecurityAccess
}
