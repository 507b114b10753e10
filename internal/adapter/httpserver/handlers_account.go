package httpserver

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gvangeel/yellow/internal/identity"
	"github.com/labstack/echo/v4"
)

const (
	accountPrefix                  = "/Identity/Account"
	loginPath                      = accountPrefix + "/Login"
	lockoutPath                    = accountPrefix + "/Lockout"
	registerConfirmationPath       = accountPrefix + "/RegisterConfirmation"
	confirmEmailPath               = accountPrefix + "/ConfirmEmail"
	forgotPasswordConfirmationPath = accountPrefix + "/ForgotPasswordConfirmation"
	resetPasswordPath              = accountPrefix + "/ResetPassword"
	resetPasswordConfirmationPath  = accountPrefix + "/ResetPasswordConfirmation"
)

const (
	msgInvalidLogin          = "Invalid login attempt."
	msgVerificationEmailSent = "Verification email sent. Please check your email."
)

type returnData struct {
	ReturnURL string
}

type registerConfirmationData struct {
	ConfirmationURL string
}

func defaultReturnURL(c echo.Context) string {
	if u := returnURL(c); isLocalURL(u) {
		return u
	}
	return "/"
}

func (s *Server) handleRegisterPage(c echo.Context) error {
	return s.renderPage(c, http.StatusOK, "register", page{
		Title: "Register",
		Form:  &registerForm{},
		Data:  returnData{ReturnURL: defaultReturnURL(c)},
	})
}

func (s *Server) handleRegister(c echo.Context) error {
	ctx := c.Request().Context()
	ret := defaultReturnURL(c)

	var form registerForm
	errs, err := s.forms.bind(c, &form)
	if err != nil {
		return err
	}

	rerender := func(errs map[string]string, summary ...string) error {
		form.Password, form.ConfirmPassword = "", ""
		return s.renderPage(c, http.StatusOK, "register", page{
			Title:   "Register",
			Form:    &form,
			Errors:  errs,
			Summary: append(summaryOf(errs, "Email", "Password", "ConfirmPassword"), summary...),
			Data:    returnData{ReturnURL: ret},
		})
	}
	if errs != nil {
		return rerender(errs)
	}

	u, err := s.identity.Register(ctx, form.Email, form.Password)
	var policyErr *identity.PasswordPolicyError
	switch {
	case errors.As(err, &policyErr):
		return rerender(nil, failureDescriptions(policyErr)...)
	case errors.Is(err, identity.ErrDuplicateUserName), errors.Is(err, identity.ErrDuplicateEmail):
		return rerender(nil, fmt.Sprintf("Username '%s' is already taken.", form.Email))
	case err != nil:
		return fmt.Errorf("failed to register user: %w", err)
	}

	if s.identityMetrics != nil {
		s.identityMetrics.Registrations.Inc()
	}

	if err := s.sendConfirmationEmail(c, u, ret); err != nil {
		return err
	}

	if s.identity.Options().SignIn.RequireConfirmedAccount {
		q := url.Values{"email": {u.Email}, "returnUrl": {ret}}
		return c.Redirect(http.StatusFound, registerConfirmationPath+"?"+q.Encode())
	}

	if err := s.signIn(c, u, false); err != nil {
		return err
	}
	return localRedirect(c, ret)
}

func (s *Server) confirmationURL(c echo.Context, u *identity.User, ret string) (string, error) {
	token, err := s.identity.GenerateEmailConfirmationToken(c.Request().Context(), u)
	if err != nil {
		return "", fmt.Errorf("failed to generate confirmation token: %w", err)
	}
	q := url.Values{"userId": {u.ID.String()}, "code": {token}}
	if ret != "" {
		q.Set("returnUrl", ret)
	}
	return s.getBaseURL(c) + confirmEmailPath + "?" + q.Encode(), nil
}

func (s *Server) sendConfirmationEmail(c echo.Context, u *identity.User, ret string) error {
	link, err := s.confirmationURL(c, u, ret)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Please confirm your account by <a href='%s'>clicking here</a>.", html.EscapeString(link))
	if err := s.sender.SendEmail(c.Request().Context(), u.Email, "Confirm your email", body); err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}
	return nil
}

func (s *Server) handleRegisterConfirmation(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return c.Redirect(http.StatusFound, "/")
	}

	u, err := s.identity.FindByEmail(c.Request().Context(), email)
	if errors.Is(err, identity.ErrUserNotFound) {
		return notFound("Unable to load user with email '%s'.", email)
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	var data registerConfirmationData
	if _, ok := s.sender.(identity.LogEmailSender); ok {
		data.ConfirmationURL, err = s.confirmationURL(c, u, defaultReturnURL(c))
		if err != nil {
			return err
		}
	}

	return s.renderPage(c, http.StatusOK, "register_confirmation", page{Title: "Register confirmation", Data: data})
}

func (s *Server) handleConfirmEmail(c echo.Context) error {
	ctx := c.Request().Context()
	rawID, code := c.QueryParam("userId"), c.QueryParam("code")
	if rawID == "" || code == "" {
		return c.Redirect(http.StatusFound, "/")
	}

	userID, err := uuid.Parse(rawID)
	if err != nil {
		return notFound("Unable to load user with ID '%s'.", rawID)
	}

	status := "Thank you for confirming your email."
	err = s.identity.ConfirmEmail(ctx, userID, code)
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return notFound("Unable to load user with ID '%s'.", rawID)
	case errors.Is(err, identity.ErrInvalidToken):
		status = "Error confirming your email."
	case err != nil:
		return fmt.Errorf("failed to confirm email: %w", err)
	default:
		slog.InfoContext(ctx, "User confirmed email", "user_id", rawID)
		if s.identityMetrics != nil {
			s.identityMetrics.Confirmations.Inc()
		}
	}

	return s.renderPage(c, http.StatusOK, "confirm_email", page{Title: "Confirm email", StatusMessage: status})
}

func (s *Server) handleResendConfirmationPage(c echo.Context) error {
	return s.renderPage(c, http.StatusOK, "resend_email_confirmation", page{
		Title: "Resend email confirmation",
		Form:  &emailForm{},
	})
}

// handleResendConfirmation answers the same way whether or not the address
// is registered.
func (s *Server) handleResendConfirmation(c echo.Context) error {
	var form emailForm
	errs, err := s.forms.bind(c, &form)
	if err != nil {
		return err
	}
	p := page{Title: "Resend email confirmation", Form: &form, Errors: errs, Summary: summaryOf(errs, "Email")}
	if errs != nil {
		return s.renderPage(c, http.StatusOK, "resend_email_confirmation", p)
	}

	u, err := s.identity.FindByEmail(c.Request().Context(), form.Email)
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
	case err != nil:
		return fmt.Errorf("failed to load user: %w", err)
	default:
		if err := s.sendConfirmationEmail(c, u, ""); err != nil {
			return err
		}
	}

	p.StatusMessage = msgVerificationEmailSent
	return s.renderPage(c, http.StatusOK, "resend_email_confirmation", p)
}

func (s *Server) handleLoginPage(c echo.Context) error {
	status, err := s.popStatus(c)
	if err != nil {
		return err
	}
	return s.renderPage(c, http.StatusOK, "login", page{
		Title:         "Log in",
		StatusMessage: status,
		Form:          &loginForm{},
		Data:          returnData{ReturnURL: defaultReturnURL(c)},
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()
	ret := defaultReturnURL(c)

	var form loginForm
	errs, err := s.forms.bind(c, &form)
	if err != nil {
		return err
	}

	rerender := func(errs map[string]string, summary ...string) error {
		form.Password = ""
		return s.renderPage(c, http.StatusOK, "login", page{
			Title:   "Log in",
			Form:    &form,
			Errors:  errs,
			Summary: append(summaryOf(errs, "Email", "Password"), summary...),
			Data:    returnData{ReturnURL: ret},
		})
	}
	if errs != nil {
		return rerender(errs)
	}

	result, u, err := s.identity.PasswordSignIn(ctx, form.Email, form.Password, true)
	if err != nil {
		return fmt.Errorf("failed to sign in: %w", err)
	}
	if s.identityMetrics != nil {
		s.identityMetrics.SignIns.WithLabelValues(result.String()).Inc()
	}

	switch result {
	case identity.SignInSucceeded:
		if err := s.signIn(c, u, form.RememberMe); err != nil {
			return err
		}
		return localRedirect(c, ret)
	case identity.SignInLockedOut:
		return c.Redirect(http.StatusFound, lockoutPath)
	default:
		return rerender(nil, msgInvalidLogin)
	}
}

func (s *Server) handleLogout(c echo.Context) error {
	if u := currentUser(c); u != nil {
		slog.InfoContext(c.Request().Context(), "User logged out", "user_id", u.ID.String())
	}
	if err := s.signOut(c); err != nil {
		return err
	}
	return localRedirect(c, returnURL(c))
}

func (s *Server) handleLockout(c echo.Context) error {
	return s.renderPage(c, http.StatusOK, "lockout", page{Title: "Locked out"})
}

func (s *Server) handleForgotPasswordPage(c echo.Context) error {
	return s.renderPage(c, http.StatusOK, "forgot_password", page{
		Title: "Forgot your password?",
		Form:  &emailForm{},
	})
}

// handleForgotPassword never reveals whether the address belongs to a
// confirmed account.
func (s *Server) handleForgotPassword(c echo.Context) error {
	ctx := c.Request().Context()

	var form emailForm
	errs, err := s.forms.bind(c, &form)
	if err != nil {
		return err
	}
	if errs != nil {
		return s.renderPage(c, http.StatusOK, "forgot_password", page{
			Title:   "Forgot your password?",
			Form:    &form,
			Errors:  errs,
			Summary: summaryOf(errs, "Email"),
		})
	}

	u, err := s.identity.FindByEmail(ctx, form.Email)
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return c.Redirect(http.StatusFound, forgotPasswordConfirmationPath)
	case err != nil:
		return fmt.Errorf("failed to load user: %w", err)
	case !u.EmailConfirmed:
		return c.Redirect(http.StatusFound, forgotPasswordConfirmationPath)
	}

	token, err := s.identity.GeneratePasswordResetToken(ctx, u)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	link := s.getBaseURL(c) + resetPasswordPath + "?" + url.Values{"code": {token}}.Encode()
	body := fmt.Sprintf("Please reset your password by <a href='%s'>clicking here</a>.", html.EscapeString(link))
	if err := s.sender.SendEmail(ctx, u.Email, "Reset Password", body); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	return c.Redirect(http.StatusFound, forgotPasswordConfirmationPath)
}

func (s *Server) handleForgotPasswordConfirmation(c echo.Context) error {
	return s.renderPage(c, http.StatusOK, "forgot_password_confirmation", page{Title: "Forgot password confirmation"})
}

func (s *Server) handleResetPasswordPage(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "A code must be supplied for password reset.")
	}
	return s.renderPage(c, http.StatusOK, "reset_password", page{
		Title: "Reset password",
		Form:  &resetPasswordForm{Code: code},
	})
}

func (s *Server) handleResetPassword(c echo.Context) error {
	ctx := c.Request().Context()

	var form resetPasswordForm
	errs, err := s.forms.bind(c, &form)
	if err != nil {
		return err
	}

	rerender := func(errs map[string]string, summary ...string) error {
		form.Password, form.ConfirmPassword = "", ""
		return s.renderPage(c, http.StatusOK, "reset_password", page{
			Title:   "Reset password",
			Form:    &form,
			Errors:  errs,
			Summary: append(summaryOf(errs, "Email", "Password", "ConfirmPassword"), summary...),
		})
	}
	if errs != nil {
		return rerender(errs)
	}

	err = s.identity.ResetPassword(ctx, form.Email, form.Code, form.Password)
	var policyErr *identity.PasswordPolicyError
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return c.Redirect(http.StatusFound, resetPasswordConfirmationPath)
	case errors.As(err, &policyErr):
		return rerender(nil, failureDescriptions(policyErr)...)
	case errors.Is(err, identity.ErrInvalidToken):
		return rerender(nil, "Invalid token.")
	case err != nil:
		return fmt.Errorf("failed to reset password: %w", err)
	}

	if s.identityMetrics != nil {
		s.identityMetrics.PasswordResets.Inc()
	}
	return c.Redirect(http.StatusFound, resetPasswordConfirmationPath)
}

func (s *Server) handleResetPasswordConfirmation(c echo.Context) error {
	return s.renderPage(c, http.StatusOK, "reset_password_confirmation", page{Title: "Reset password confirmation"})
}

func failureDescriptions(err *identity.PasswordPolicyError) []string {
	descs := make([]string, len(err.Failures))
	for i, f := range err.Failures {
		descs[i] = f.Description
	}
	return descs
}
