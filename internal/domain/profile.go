package domain

import "errors"

var (
	ErrInvalidProfileType    = errors.New("invalid profile type")
	ErrInvalidCandidates     = errors.New("candidates must be between 0 and 3")
	ErrInvalidMaxRetries     = errors.New("max retries must be between -1 and 10")
	ErrInvalidTimeoutSeconds = errors.New("timeout seconds must be at least 1")
)

type ProfileType string

const (
	ProfileQuick    ProfileType = "quick"
	ProfileStandard ProfileType = "standard"
	ProfileThorough ProfileType = "thorough"
)

func (p ProfileType) IsValid() bool {
	switch p {
	case ProfileQuick, ProfileStandard, ProfileThorough:
		return true
	}
	return false
}

func (p ProfileType) String() string { return string(p) }

// Profile - насколько глубоко проверяем перевод
type Profile struct {
	Type ProfileType
	// Candidates - сколько доп. переводов у других провайдеров просить для сверки
	Candidates int
	UseCritic  bool
	// MaxRetries: -1 - как в политике категории сбоя
	MaxRetries     int
	TimeoutSeconds int
}

const (
	MaxCandidates = 3
	MaxRetries    = 10
)

func (p Profile) Validate() error {
	if !p.Type.IsValid() {
		return ErrInvalidProfileType
	}
	if p.Candidates < 0 || p.Candidates > MaxCandidates {
		return ErrInvalidCandidates
	}
	if p.MaxRetries < -1 || p.MaxRetries > MaxRetries {
		return ErrInvalidMaxRetries
	}
	if p.TimeoutSeconds < 1 {
		return ErrInvalidTimeoutSeconds
	}
	return nil
}

// Предустановленные профили

func QuickProfile() Profile {
	return Profile{
		Type:           ProfileQuick,
		Candidates:     0,
		UseCritic:      false,
		MaxRetries:     1,
		TimeoutSeconds: 30,
	}
}

func StandardProfile() Profile {
	return Profile{
		Type:           ProfileStandard,
		Candidates:     1,
		UseCritic:      false,
		MaxRetries:     -1,
		TimeoutSeconds: 90,
	}
}

func ThoroughProfile() Profile {
	return Profile{
		Type:           ProfileThorough,
		Candidates:     2,
		UseCritic:      true,
		MaxRetries:     -1,
		TimeoutSeconds: 240,
	}
}

// ProfileByName - пустое имя дает стандартный профиль
func ProfileByName(name string) (Profile, error) {
	switch ProfileType(name) {
	case "", ProfileStandard:
		return StandardProfile(), nil
	case ProfileQuick:
		return QuickProfile(), nil
	case ProfileThorough:
		return ThoroughProfile(), nil
	}
	return Profile{}, ErrInvalidProfileType
}
