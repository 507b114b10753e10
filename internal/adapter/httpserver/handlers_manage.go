package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gvangeel/yellow/internal/identity"
	"github.com/labstack/echo/v4"
)

const (
	managePath               = accountPrefix + "/Manage"
	manageChangePasswordPath = managePath + "/ChangePassword"
)

func (s *Server) handleManagePage(c echo.Context) error {
	status, err := s.popStatus(c)
	if err != nil {
		return err
	}
	return s.renderPage(c, http.StatusOK, "manage_index", page{
		Title:         "Profile",
		StatusMessage: status,
		Form:          &profileForm{PhoneNumber: currentUser(c).PhoneNumber},
	})
}

func (s *Server) handleManage(c echo.Context) error {
	u := currentUser(c)

	var form profileForm
	errs, err := s.forms.bind(c, &form)
	if err != nil {
		return err
	}
	if errs != nil {
		return s.renderPage(c, http.StatusOK, "manage_index", page{
			Title:   "Profile",
			Form:    &form,
			Errors:  errs,
			Summary: summaryOf(errs, "PhoneNumber"),
		})
	}

	if form.PhoneNumber != u.PhoneNumber {
		updated, err := s.identity.UpdatePhoneNumber(c.Request().Context(), u.ID, form.PhoneNumber)
		if errors.Is(err, identity.ErrConcurrencyFailure) {
			if err := s.setStatus(c, "Unexpected error when trying to set phone number."); err != nil {
				return err
			}
			return c.Redirect(http.StatusFound, managePath)
		}
		if err != nil {
			return fmt.Errorf("failed to update phone number: %w", err)
		}
		u = updated
	}

	if err := s.refreshSignIn(c, u); err != nil {
		return err
	}
	if err := s.setStatus(c, "Your profile has been updated"); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, managePath)
}

func (s *Server) handleChangePasswordPage(c echo.Context) error {
	status, err := s.popStatus(c)
	if err != nil {
		return err
	}
	return s.renderPage(c, http.StatusOK, "manage_change_password", page{
		Title:         "Change password",
		StatusMessage: status,
		Form:          &changePasswordForm{},
	})
}

func (s *Server) handleChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	u := currentUser(c)

	var form changePasswordForm
	errs, err := s.forms.bind(c, &form)
	if err != nil {
		return err
	}

	rerender := func(errs map[string]string, summary ...string) error {
		return s.renderPage(c, http.StatusOK, "manage_change_password", page{
			Title:   "Change password",
			Form:    &changePasswordForm{},
			Errors:  errs,
			Summary: append(summaryOf(errs, "OldPassword", "NewPassword", "ConfirmPassword"), summary...),
		})
	}
	if errs != nil {
		return rerender(errs)
	}

	updated, err := s.identity.ChangePassword(ctx, u.ID, form.OldPassword, form.NewPassword)
	var policyErr *identity.PasswordPolicyError
	switch {
	case errors.Is(err, identity.ErrPasswordMismatch):
		return rerender(nil, "Incorrect password.")
	case errors.As(err, &policyErr):
		return rerender(nil, failureDescriptions(policyErr)...)
	case err != nil:
		return fmt.Errorf("failed to change password: %w", err)
	}

	if err := s.refreshSignIn(c, updated); err != nil {
		return err
	}
	if err := s.setStatus(c, "Your password has been changed."); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, manageChangePasswordPath)
}
