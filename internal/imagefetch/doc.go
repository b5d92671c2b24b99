// Package imagefetch 把远程图片下载到本地临时文件，供浏览器上传。
//
// 请求经过 httpcache 内存缓存，底层使用 tlsutil 的加固 Transport。
// 同一 URL 在缓存有效期内重复发帖不会重复下载。
package imagefetch
