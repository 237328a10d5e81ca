package vault

import "fmt"

// Level is the protection level of the vault.
type Level uint8

const (
	Unprotected Level = iota
	PasswordProtected
	BiometricEnabled
)

func (l Level) String() string {
	switch l {
	case Unprotected:
		return "unprotected"
	case PasswordProtected:
		return "password"
	case BiometricEnabled:
		return "password+biometric"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

type event string

const (
	evSetupPassword    event = "setup_password"
	evChangePassword   event = "change_password"
	evRemovePassword   event = "remove_password"
	evEnableBiometric  event = "enable_biometric"
	evDisableBiometric event = "disable_biometric"
)

type edge struct {
	from  Level
	event event
}

// transitions maps (level, event) to the level reached once the event's
// work has been committed.
var transitions = map[edge]Level{
	{Unprotected, evSetupPassword}:         PasswordProtected,
	{PasswordProtected, evChangePassword}:  PasswordProtected,
	{BiometricEnabled, evChangePassword}:   PasswordProtected,
	{PasswordProtected, evRemovePassword}:  Unprotected,
	{BiometricEnabled, evRemovePassword}:   Unprotected,
	{PasswordProtected, evEnableBiometric}: BiometricEnabled,
	{BiometricEnabled, evDisableBiometric}: PasswordProtected,
}

func nextLevel(from Level, ev event) (Level, error) {
	to, ok := transitions[edge{from, ev}]
	if !ok {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
	}
	return to, nil
}
