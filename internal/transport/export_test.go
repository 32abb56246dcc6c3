package transport

var HandlerCount = (*Client).handlerCount
