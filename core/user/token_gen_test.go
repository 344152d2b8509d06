package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tapir/core"
)

func TestMakeVerifyToken(t *testing.T) {
	gen := newTokenGenerator("secret", 3*24*time.Hour)

	now := time.Now()
	usr := User{
		ID:        "8c4b3a52-8e0b-4f5c-a34e-5f0a4fb2b7d1",
		Name:      "T",
		Username:  "t",
		Email:     "t@test.test",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = usr.SetPassword("pwd")

	validToken := gen.makeToken(usr)

	// generate an expired token
	dayLate := gen.timeout + (24 * time.Hour)
	core.NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := gen.makeToken(usr)
	core.NowFunc = time.Now // reset

	otherGen := newTokenGenerator("other-secret", gen.timeout)
	pwdChanged := usr
	_ = pwdChanged.SetPassword("new-pwd")

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "other secret", usr: usr, token: otherGen.makeToken(usr), wantErr: errInvalidToken},
		{name: "password changed", usr: pwdChanged, token: validToken, wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, gen.verifyToken(tt.usr, tt.token))
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "8c4b3a52-8e0b-4f5c-a34e-5f0a4fb2b7d1"}
	uid, err := decodeUID(encodeUID(usr))
	assert.NoError(t, err)
	assert.Equal(t, usr.ID, uid)

	_, err = decodeUID("%%%")
	assert.Error(t, err)
}
