package auth

// ActionCodeSettings controls the links sent by SendSignInLinkToEmail and
// SendPasswordResetEmail. URL is required.
type ActionCodeSettings struct {
	URL string
	// HandleCodeInApp must be true for email link sign-in.
	HandleCodeInApp   *bool
	Android           *AndroidActionCodeSettings
	IOS               *IOSActionCodeSettings
	DynamicLinkDomain string
}

type AndroidActionCodeSettings struct {
	PackageName    string
	InstallApp     *bool
	MinimumVersion string
}

type IOSActionCodeSettings struct {
	BundleID string
}

func (s *ActionCodeSettings) validate() error {
	if s.URL == "" {
		return newError(KindMissingContinueURI, "a continue URL must be provided", nil)
	}
	if s.Android != nil && s.Android.PackageName == "" {
		return newError(KindMissingAndroidPkgName, "an Android package name must be provided if the Android app is required to be installed", nil)
	}
	if s.IOS != nil && s.IOS.BundleID == "" {
		return newError(KindMissingIOSBundleID, "an iOS bundle ID must be provided", nil)
	}
	return nil
}

// oobRequest is the accounts:sendOobCode body.
type oobRequest struct {
	RequestType           string `json:"requestType"`
	Email                 string `json:"email"`
	ContinueURL           string `json:"continueUrl,omitempty"`
	CanHandleCodeInApp    *bool  `json:"canHandleCodeInApp,omitempty"`
	AndroidPackageName    string `json:"androidPackageName,omitempty"`
	AndroidInstallApp     *bool  `json:"androidInstallApp,omitempty"`
	AndroidMinimumVersion string `json:"androidMinimumVersion,omitempty"`
	IOSBundleID           string `json:"iOSBundleId,omitempty"`
	DynamicLinkDomain     string `json:"dynamicLinkDomain,omitempty"`
	TenantID              string `json:"tenantId,omitempty"`
}

func (s *ActionCodeSettings) applyTo(req *oobRequest) {
	if s == nil {
		return
	}
	req.ContinueURL = s.URL
	req.CanHandleCodeInApp = s.HandleCodeInApp
	req.DynamicLinkDomain = s.DynamicLinkDomain
	if s.Android != nil {
		req.AndroidPackageName = s.Android.PackageName
		req.AndroidInstallApp = s.Android.InstallApp
		req.AndroidMinimumVersion = s.Android.MinimumVersion
	}
	if s.IOS != nil {
		req.IOSBundleID = s.IOS.BundleID
	}
}
