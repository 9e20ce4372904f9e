package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/course-keeper/internal/crypto"
	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/limiter"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/remote"
	"github.com/and161185/course-keeper/internal/store"
)

// Token roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// SignUpForm is the library sign-up form.
type SignUpForm struct {
	FullName        string `json:"full_name"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	ReferralCode    string `json:"referral_code,omitempty"`
	// Visitor selects the referral code remembered for this visitor, if any.
	Visitor string `json:"-"`
}

// Availability is the result of a username lookup.
type Availability string

// Username availability states. Names shorter than 3 characters are never looked up.
const (
	UsernameUndetermined Availability = "undetermined"
	UsernameAvailable    Availability = "available"
	UsernameTaken        Availability = "taken"
)

// Claims are the session token claims.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService defines library account and admin authentication operations.
type AuthService interface {
	// SignUp validates the form, creates the account and records a referral when a code is known.
	SignUp(ctx context.Context, form SignUpForm) (model.Account, error)
	// SignIn authenticates with rate limiting by (email, ip) and issues a session token.
	SignIn(ctx context.Context, email, password, ip string, remember bool) (model.Session, error)
	// SignOut forgets the persistent session.
	SignOut(ctx context.Context, email string) error
	// CurrentSession returns the remembered session, if any.
	CurrentSession(ctx context.Context) (model.Session, bool)
	// RememberReferral keeps a referral code from a link until the visitor signs up.
	RememberReferral(ctx context.Context, visitor, code string) error
	// UsernameAvailability checks a username across both user lists.
	UsernameAvailability(ctx context.Context, name string) Availability
	// AdminLogin checks the configured admin credentials and issues an admin token.
	AdminLogin(ctx context.Context, username, password, ip string) (model.Tokens, error)
	// ParseToken validates a session token.
	ParseToken(token string) (*Claims, error)
}

// AuthOptions configure AuthServiceImpl.
type AuthOptions struct {
	SignKey       []byte
	SessionTTL    time.Duration
	AdminUsername string
	AdminPassword string
	// UXDelay paces sign-in and sign-up; zero disables it.
	UXDelay time.Duration
}

type AuthServiceImpl struct {
	st       *store.Store
	guard    *remote.Guard
	lim      limiter.Limiter
	refs     ReferralService
	roster   *Roster
	activity *ActivityLog
	opts     AuthOptions
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(st *store.Store, guard *remote.Guard, lim limiter.Limiter, refs ReferralService,
	roster *Roster, activity *ActivityLog, opts AuthOptions, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	return &AuthServiceImpl{
		st: st, guard: guard, lim: lim, refs: refs, roster: roster, activity: activity,
		opts: opts, log: log, now: time.Now,
	}
}

// PasswordStrength scores a password from 0 to 5: length of at least 6, length of at least 8,
// an upper-case letter, a digit and a symbol each add one.
func PasswordStrength(pw string) int {
	score := 0
	if len(pw) >= 6 {
		score++
	}
	if len(pw) >= 8 {
		score++
	}
	var upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case !(r >= 'a' && r <= 'z'):
			symbol = true
		}
	}
	for _, ok := range []bool{upper, digit, symbol} {
		if ok {
			score++
		}
	}
	return score
}

func (s *AuthServiceImpl) pause(ctx context.Context) {
	if s.opts.UXDelay <= 0 {
		return
	}
	select {
	case <-time.After(s.opts.UXDelay):
	case <-ctx.Done():
	}
}

// UsernameAvailability reports Undetermined for names shorter than 3 characters without any
// lookup, otherwise Taken when library_users or the roster holds the name (case-insensitive).
func (s *AuthServiceImpl) UsernameAvailability(ctx context.Context, name string) Availability {
	name = strings.ToLower(strings.TrimSpace(name))
	if len([]rune(name)) < 3 {
		return UsernameUndetermined
	}
	for _, a := range store.ReadAll[model.Account](ctx, s.st, store.KeyLibraryUsers) {
		if strings.EqualFold(a.Username, name) {
			return UsernameTaken
		}
	}
	for _, u := range store.ReadAll[model.RegisteredUser](ctx, s.st, store.KeyRegisteredUsers) {
		if strings.EqualFold(u.Username, name) {
			return UsernameTaken
		}
	}
	return UsernameAvailable
}

func (s *AuthServiceImpl) validateSignUp(ctx context.Context, f SignUpForm) error {
	username := strings.TrimSpace(f.Username)
	email := strings.TrimSpace(f.Email)
	switch {
	case strings.TrimSpace(f.FullName) == "":
		return errs.Invalid("full_name", "Please enter your full name")
	case len([]rune(username)) < 3:
		return errs.Invalid("username", "Username must be at least 3 characters")
	case s.UsernameAvailability(ctx, username) == UsernameTaken:
		return errs.Invalid("username", "This username is already taken. Please choose another.")
	case email == "":
		return errs.Invalid("email", "Please enter your email address")
	case !strings.Contains(email, "@"):
		return errs.Invalid("email", "Please enter a valid email address")
	case strings.TrimSpace(f.Password) == "":
		return errs.Invalid("password", "Please enter a password")
	case len(f.Password) < 6:
		return errs.Invalid("password", "Password must be at least 6 characters long")
	case f.Password != f.ConfirmPassword:
		return errs.Invalid("confirm_password", "Passwords do not match")
	}
	return nil
}

// SignUp creates an account in library_users and the roster, then inserts it remotely on a
// best-effort basis. A referral code from the form, or one remembered from a referral link,
// is credited to its owner.
func (s *AuthServiceImpl) SignUp(ctx context.Context, f SignUpForm) (model.Account, error) {
	if err := s.validateSignUp(ctx, f); err != nil {
		return model.Account{}, err
	}
	email := model.NormalizeEmail(f.Email)
	if _, err := s.findAccount(ctx, email); err == nil {
		return model.Account{}, &errs.ValidationError{
			Field:   "email",
			Message: "An account with this email already exists. Please sign in instead.",
			Err:     errs.ErrAlreadyExists,
		}
	}
	s.pause(ctx)

	hash, err := pkgcrypto.Encode(f.Password)
	if err != nil {
		return model.Account{}, fmt.Errorf("hash password: %w", err)
	}
	acct := model.Account{
		ID:           newUserID(),
		Email:        email,
		Username:     strings.ToLower(strings.TrimSpace(f.Username)),
		FullName:     strings.TrimSpace(f.FullName),
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.saveAccount(ctx, acct); err != nil {
		return model.Account{}, err
	}
	if err := s.addToRoster(ctx, acct); err != nil {
		return model.Account{}, err
	}
	// Purchases made under this email before sign-up mark the new row as a buyer.
	if _, err := s.roster.Refresh(ctx); err != nil {
		s.log.Error("roster refresh", zap.Error(err))
	}

	if s.guard.Configured() {
		err := s.guard.Do(ctx, func(ctx context.Context, rm remote.Remote) error {
			return rm.InsertUser(ctx, acct)
		})
		if err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
			s.log.Warn("remote user insert failed, kept locally", zap.Error(err))
		}
	}

	code := strings.TrimSpace(f.ReferralCode)
	var pending string
	if checkVisitor(f.Visitor) == nil {
		pending = s.st.Flag(ctx, store.PendingReferralKey(f.Visitor))
	}
	if code == "" {
		code = pending
	}
	if code != "" {
		if _, err := s.refs.RecordSignup(ctx, code, acct.Email, acct.FullName); err != nil {
			s.log.Error("record referral", zap.Error(err))
		}
	}
	if pending != "" {
		_ = s.st.Remove(ctx, store.PendingReferralKey(f.Visitor))
	}

	s.activity.Track(ctx, acct.Email, model.ActionSignup,
		fmt.Sprintf("New account created: %s (@%s)", acct.FullName, acct.Username), "library")
	return acct, nil
}

// RememberReferral stores a referral code the visitor saw before sign-up.
func (s *AuthServiceImpl) RememberReferral(ctx context.Context, visitor, code string) error {
	if err := checkVisitor(visitor); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	return s.st.SetFlag(ctx, store.PendingReferralKey(visitor), code)
}

func (s *AuthServiceImpl) saveAccount(ctx context.Context, acct model.Account) error {
	accounts := store.ReadAll[model.Account](ctx, s.st, store.KeyLibraryUsers)
	replaced := false
	for i := range accounts {
		if strings.EqualFold(accounts[i].Email, acct.Email) {
			accounts[i] = acct
			replaced = true
			break
		}
	}
	if !replaced {
		accounts = append(accounts, acct)
	}
	if err := store.WriteAll(ctx, s.st, store.KeyLibraryUsers, accounts); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *AuthServiceImpl) addToRoster(ctx context.Context, acct model.Account) error {
	users := store.ReadAll[model.RegisteredUser](ctx, s.st, store.KeyRegisteredUsers)
	for i := range users {
		if strings.EqualFold(users[i].Email, acct.Email) {
			users[i].Username = acct.Username
			return store.WriteAll(ctx, s.st, store.KeyRegisteredUsers, users)
		}
	}
	users = append(users, model.RegisteredUser{
		ID:         acct.ID,
		Email:      acct.Email,
		FullName:   acct.FullName,
		Username:   acct.Username,
		CreatedAt:  acct.CreatedAt,
		LastActive: s.now(),
	})
	if err := store.WriteAll(ctx, s.st, store.KeyRegisteredUsers, users); err != nil {
		return fmt.Errorf("save roster: %w", err)
	}
	return nil
}

// findAccount looks in library_users first, then asks the remote when reachable and caches
// a remote hit locally.
func (s *AuthServiceImpl) findAccount(ctx context.Context, email string) (model.Account, error) {
	for _, a := range store.ReadAll[model.Account](ctx, s.st, store.KeyLibraryUsers) {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	if !s.guard.Reachable(ctx) {
		return model.Account{}, errs.ErrNotFound
	}
	var found *model.Account
	err := s.guard.Do(ctx, func(ctx context.Context, rm remote.Remote) error {
		var err error
		found, err = rm.FindUserByEmail(ctx, email)
		return err
	})
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			s.log.Warn("remote user lookup failed", zap.Error(err))
		}
		return model.Account{}, errs.ErrNotFound
	}
	if err := s.saveAccount(ctx, *found); err != nil {
		s.log.Error("cache remote account", zap.Error(err))
	}
	return *found, nil
}

// SignIn authenticates a library user. With remember set the session flags are persisted so
// CurrentSession can restore it.
func (s *AuthServiceImpl) SignIn(ctx context.Context, email, password, ip string, remember bool) (model.Session, error) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return model.Session{}, errs.Invalid("email", "Please enter your email address")
	case !strings.Contains(email, "@"):
		return model.Session{}, errs.Invalid("email", "Please enter a valid email address")
	case strings.TrimSpace(password) == "":
		return model.Session{}, errs.Invalid("password", "Please enter your password")
	}
	email = model.NormalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Session{}, err
	}
	if !allowed {
		return model.Session{}, errs.ErrRateLimited
	}
	s.pause(ctx)

	acct, err := s.findAccount(ctx, email)
	if err != nil {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Session{}, errs.ErrRateLimited
		}
		return model.Session{}, &errs.ValidationError{
			Field:   "email",
			Message: "No account found with this email. Please sign up first.",
			Err:     errs.ErrUnauthorized,
		}
	}
	if ok, _ := pkgcrypto.Verify(password, acct.PasswordHash); !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Session{}, errs.ErrRateLimited
		}
		return model.Session{}, &errs.ValidationError{
			Field:   "password",
			Message: "Incorrect password. Please try again.",
			Err:     errs.ErrUnauthorized,
		}
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, email, ipHash)

	if err := s.roster.Touch(ctx, email); err != nil {
		s.log.Error("roster last active", zap.Error(err))
	}
	if remember {
		if err := s.st.SetFlag(ctx, store.KeySessionEmail, email); err != nil {
			return model.Session{}, err
		}
		if err := s.st.SetFlag(ctx, store.KeyRememberMe, "true"); err != nil {
			return model.Session{}, err
		}
	}

	tok, exp, err := s.issueToken(email, RoleUser)
	if err != nil {
		return model.Session{}, err
	}
	s.activity.Track(ctx, email, model.ActionSignin, "User signed in", "library")
	return model.Session{
		Email:    email,
		FullName: acct.FullName,
		Username: acct.Username,
		Token:    tok,
		Expires:  exp,
	}, nil
}

// SignOut tracks the event and clears the persistent session flags.
func (s *AuthServiceImpl) SignOut(ctx context.Context, email string) error {
	s.activity.Track(ctx, email, model.ActionSignout, "User signed out", "library")
	if err := s.st.Remove(ctx, store.KeySessionEmail); err != nil {
		return err
	}
	return s.st.Remove(ctx, store.KeyRememberMe)
}

// CurrentSession restores a remembered sign-in. The returned session carries no token.
func (s *AuthServiceImpl) CurrentSession(ctx context.Context) (model.Session, bool) {
	email := s.st.Flag(ctx, store.KeySessionEmail)
	if email == "" || s.st.Flag(ctx, store.KeyRememberMe) != "true" {
		return model.Session{}, false
	}
	sess := model.Session{Email: email}
	for _, a := range store.ReadAll[model.Account](ctx, s.st, store.KeyLibraryUsers) {
		if strings.EqualFold(a.Email, email) {
			sess.FullName, sess.Username = a.FullName, a.Username
			break
		}
	}
	return sess, true
}

// AdminLogin checks the configured admin credentials in constant time. An empty configured
// password disables admin login.
func (s *AuthServiceImpl) AdminLogin(ctx context.Context, username, password, ip string) (model.Tokens, error) {
	key := "admin:" + strings.ToLower(strings.TrimSpace(username))
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, key, ipHash)
	if err != nil {
		return model.Tokens{}, err
	}
	if !allowed {
		return model.Tokens{}, errs.ErrRateLimited
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.opts.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.AdminPassword)) == 1
	if s.opts.AdminPassword == "" || !userOK || !passOK {
		if blocked, _, ferr := s.lim.Failure(ctx, key, ipHash); ferr == nil && blocked {
			return model.Tokens{}, errs.ErrRateLimited
		}
		return model.Tokens{}, errs.ErrUnauthorized
	}
	_ = s.lim.Success(ctx, key, ipHash)

	tok, exp, err := s.issueToken(username, RoleAdmin)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: tok, ExpiresAt: exp}, nil
}

// issueToken creates a signed HS256 JWT for the given subject and role.
func (s *AuthServiceImpl) issueToken(subject, role string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.opts.SessionTTL)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.opts.SignKey)
	return signed, exp, err
}

// ParseToken validates signature, algorithm and expiry.
func (s *AuthServiceImpl) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.opts.SignKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, errs.ErrUnauthorized
	}
	return claims, nil
}
