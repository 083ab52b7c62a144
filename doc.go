// Package auth is a small authentication service: it registers users,
// checks their passwords and issues signed session tokens that other
// backends verify through the same service.
//
// Service API:
//   - Every API route except health requires a service API key in the
//     x-api-key header. Gate resolves the key against the service_api_keys
//     table on each request, so deleted keys stop working immediately.
//   - Service implements register, login, verify and userinfo. Unknown users
//     and bad passwords fail with the same ErrInvalidCredentials; only the
//     activity record tells them apart.
//
// Admin console:
//   - AdminService manages users and service keys for admins. Admin sessions
//     are tokens for a separate audience, so API tokens never open the
//     console. Cookie sessions must echo a CSRF token on unsafe requests.
//   - Password reset links are signed with a key derived from the service
//     secret and cannot be replayed as session tokens.
//
// Activity sinks:
//   - ActivitySink receives audit events for logins, registrations, gate
//     rejections and admin actions. Sinks run best effort (errors and panics
//     are logged) so a broken sink never blocks authentication.
package auth
