package server

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"musicbox/core/access"
	"musicbox/core/auth"
	"musicbox/logger"
	"musicbox/model"
	"musicbox/repository"

	"github.com/asaskevich/govalidator"
)

// bcrypt ignores everything past 72 bytes, so longer passwords are refused.
const maxPasswordBytes = 72

// registerForm is the typed registration request.
type registerForm struct {
	Username  string
	Email     string
	Password  string
	Password2 string
}

func parseRegisterForm(r *http.Request) registerForm {
	return registerForm{
		Username:  strings.TrimSpace(r.PostFormValue("username")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		Password:  r.PostFormValue("password"),
		Password2: r.PostFormValue("password2"),
	}
}

// validate returns one message per failed rule.
func (f registerForm) validate() []string {
	var errs []string
	if n := utf8.RuneCountInString(f.Username); n < 3 || n > 20 {
		errs = append(errs, "Username must be between 3 and 20 characters.")
	}
	if f.Email == "" || !govalidator.IsEmail(f.Email) || len(f.Email) > 120 {
		errs = append(errs, "Please enter a valid email address.")
	}
	if utf8.RuneCountInString(f.Password) < 6 {
		errs = append(errs, "Password must be at least 6 characters.")
	} else if len(f.Password) > maxPasswordBytes {
		errs = append(errs, "Password is too long.")
	}
	if f.Password != f.Password2 {
		errs = append(errs, "Passwords do not match.")
	}
	return errs
}

// RegisterHandler handles GET and POST /auth/register.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if access.FromContext(r.Context()).Authenticated() {
		redirect(w, r, "/")
		return
	}
	data := h.newPageData(w, r)
	if r.Method != http.MethodPost {
		render(w, h.pages.register, http.StatusOK, data)
		return
	}

	form := parseRegisterForm(r)
	data.Username, data.Email = form.Username, form.Email
	if errs := form.validate(); len(errs) > 0 {
		data.Flashes = append(data.Flashes, errs...)
		render(w, h.pages.register, http.StatusOK, data)
		return
	}

	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		logger.Error("[Register] 密码加密失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user := &model.User{Username: form.Username, Email: form.Email, PasswordHash: hash}
	if err := h.userRepo.CreateUser(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			data.Flashes = append(data.Flashes, "That username is already taken.")
		case errors.Is(err, repository.ErrDuplicateEmail):
			data.Flashes = append(data.Flashes, "That email is already registered.")
		default:
			logger.Error("[Register] 创建用户失败", logger.String("username", form.Username), logger.ErrorField(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		render(w, h.pages.register, http.StatusOK, data)
		return
	}

	logger.Info("[Register] 注册成功", logger.String("username", user.Username), logger.Int64("userId", user.ID))
	addFlash(w, "Registration complete. Please log in.")
	redirect(w, r, "/auth/login")
}

// LoginHandler handles GET and POST /auth/login.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if access.FromContext(r.Context()).Authenticated() {
		redirect(w, r, "/")
		return
	}
	data := h.newPageData(w, r)
	data.Next = r.FormValue("next")
	if r.Method != http.MethodPost {
		render(w, h.pages.login, http.StatusOK, data)
		return
	}

	// 用户名或邮箱均可登录
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	data.Username = username
	if username == "" || password == "" {
		data.Flashes = append(data.Flashes, "Username and password are required.")
		render(w, h.pages.login, http.StatusOK, data)
		return
	}

	var user *model.User
	var err error
	if strings.Contains(username, "@") {
		user, err = h.userRepo.GetUserByEmail(r.Context(), username)
	} else {
		user, err = h.userRepo.GetUserByUsername(r.Context(), username)
	}
	if err != nil {
		logger.Error("[Login] 查询用户失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		logger.Warn("[Login] 用户名或密码错误", logger.String("username", username))
		data.Flashes = append(data.Flashes, "Invalid username or password.")
		render(w, h.pages.login, http.StatusOK, data)
		return
	}

	sid, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		logger.Error("[Login] 创建会话失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	token, err := h.signer.Sign(sid, user.ID, user.Username)
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setSessionCookie(w, r, token, h.signer.TTL())
	logger.Info("[Login] 登录成功", logger.String("username", user.Username))
	addFlash(w, "Welcome, "+user.Username+"!")
	redirect(w, r, safeNext(data.Next))
}

// LogoutHandler ends the current session.
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if sid := sessionIDFrom(r.Context()); sid != "" {
		if err := h.sessions.Revoke(r.Context(), sid); err != nil {
			logger.Warn("[Logout] 撤销会话失败", logger.ErrorField(err))
		}
	}
	clearSessionCookie(w)
	addFlash(w, "You have been logged out.")
	redirect(w, r, "/")
}
