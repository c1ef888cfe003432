package domain

// Permission is a location permission grant held by the host.
type Permission string

const (
	PermissionCoarse Permission = "coarse_location"
	PermissionFine   Permission = "fine_location"
)

// PermissionPolicy decides which combination of grants allows subscribing.
type PermissionPolicy string

const (
	// RequireAny allows subscribing when coarse or fine is granted.
	RequireAny PermissionPolicy = "any"
	// RequireBoth needs coarse and fine at the same time.
	RequireBoth PermissionPolicy = "both"
)

// PolicyFor maps the requireBothPermissions flag to a policy.
func PolicyFor(requireBoth bool) PermissionPolicy {
	if requireBoth {
		return RequireBoth
	}
	return RequireAny
}

// Allows evaluates the policy against the given grant state.
func (p PermissionPolicy) Allows(coarse, fine bool) bool {
	if p == RequireBoth {
		return coarse && fine
	}
	return coarse || fine
}

// PermissionDeniedMessage is the user-facing text shown when the required
// location permissions are missing.
const PermissionDeniedMessage = "من فضلك قم بمنح إذن الوصول للموقع الجغرافي"

// LocationDisabledMessage is shown when permissions are granted but both GPS
// and network positioning are switched off.
const LocationDisabledMessage = "من فضلك قم بتفعيل خدمة الموقع الجغرافي"
