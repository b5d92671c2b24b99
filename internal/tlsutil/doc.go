// Package tlsutil 为出站 HTTP 客户端提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
//
// 图片下载与 Anthropic 规划请求都经由这里构建的 Transport 发出。
package tlsutil
