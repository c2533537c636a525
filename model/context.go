package model

// Context transaction / error 的请求上下文。
// Headers / Cookies 里的敏感字段在序列化时脱敏。
type Context struct {
	Request  *Request  `json:"request,omitempty"`
	Response *Response `json:"response,omitempty"`
	User     *User     `json:"user,omitempty"`
	Labels   Labels    `json:"tags,omitempty"`
}

type Request struct {
	Method      string            `json:"method"`
	URL         URL               `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	Cookies     map[string]string `json:"cookies,omitempty"`
	HTTPVersion string            `json:"http_version,omitempty"`
	Socket      *Socket           `json:"socket,omitempty"`
}

type URL struct {
	Full     string `json:"full,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Pathname string `json:"pathname,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Raw      string `json:"raw,omitempty"`
	Search   string `json:"search,omitempty"`
}

type Socket struct {
	Encrypted     bool   `json:"encrypted"`
	RemoteAddress string `json:"remote_address,omitempty"`
}

type Response struct {
	StatusCode  int               `json:"status_code,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	HeadersSent bool              `json:"headers_sent"`
	Finished    bool              `json:"finished"`
}

type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}
