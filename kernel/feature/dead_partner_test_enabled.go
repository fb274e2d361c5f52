//go:build dead_partner_test

package feature

// DeadPartnerTest kills an IPC partner mid-protocol to exercise the fail-safe delivery paths.
const DeadPartnerTest = true
