package providers

import (
	"crypto/subtle"
	"strings"

	"wsd/internal/structures"
)

type AccessProviderInterface interface {
	IsAdmin(token string) bool
	CanJoin(identity, token, channel string) bool
	TrustsGateway(token string) bool
}

// AccessProvider decides who may run privileged commands and whose identity
// claims are believed. An empty token disables what it guards.
type AccessProvider struct {
	adminToken   []byte
	gatewayToken []byte
	acl          map[string]map[string]struct{}
}

func NewAccessProvider(conf *structures.Config) AccessProviderInterface {
	acl := make(map[string]map[string]struct{}, len(conf.Access.ChannelACL))
	for channel, identities := range conf.Access.ChannelACL {
		set := make(map[string]struct{}, len(identities))
		for _, id := range identities {
			set[strings.ToLower(id)] = struct{}{}
		}
		acl[strings.ToLower(channel)] = set
	}
	return &AccessProvider{
		adminToken:   []byte(conf.Access.AdminToken),
		gatewayToken: []byte(conf.Access.GatewayToken),
		acl:          acl,
	}
}

func (a *AccessProvider) IsAdmin(token string) bool {
	return tokenMatches(a.adminToken, token)
}

// TrustsGateway reports whether token identifies the chat gateway, the only
// caller allowed to assert identities.
func (a *AccessProvider) TrustsGateway(token string) bool {
	return tokenMatches(a.gatewayToken, token)
}

func tokenMatches(want []byte, got string) bool {
	if len(want) == 0 || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare(want, []byte(got)) == 1
}

func (a *AccessProvider) CanJoin(identity, token, channel string) bool {
	if a.IsAdmin(token) {
		return true
	}
	if identity == "" {
		return false
	}
	set, ok := a.acl[strings.ToLower(channel)]
	if !ok {
		return false
	}
	_, ok = set[strings.ToLower(identity)]
	return ok
}
