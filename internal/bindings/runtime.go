package bindings

// runtimePy is the transport helper shared by every generated stub. It
// speaks JSON-RPC over HTTP to the in-container proxy endpoint using only
// the standard library, so the sandbox image needs no extra packages.
const runtimePy = `"""Transport helper for generated tool stubs."""
import json
import os
import urllib.request

_ENDPOINT = os.environ.get("MCPHUB_PROXY_URL", "http://127.0.0.1:{{.ProxyPort}}/mcp")
_session_id = None
_request_seq = 0


class ToolError(Exception):
    """Raised when a tool call returns an error result."""


def _post(payload):
    global _session_id
    data = json.dumps(payload).encode("utf-8")
    req = urllib.request.Request(
        _ENDPOINT,
        data=data,
        headers={
            "Content-Type": "application/json",
            "Accept": "application/json, text/event-stream",
        },
    )
    if _session_id:
        req.add_header("Mcp-Session-Id", _session_id)
    with urllib.request.urlopen(req, timeout=60) as resp:
        sid = resp.headers.get("Mcp-Session-Id")
        if sid:
            _session_id = sid
        body = resp.read().decode("utf-8")
    if body.startswith("event:") or body.startswith("data:"):
        for line in body.splitlines():
            if line.startswith("data:"):
                body = line[5:].strip()
                break
    return json.loads(body) if body else {}


def _next_id():
    global _request_seq
    _request_seq += 1
    return _request_seq


def _ensure_session():
    global _session_id
    if _session_id is not None:
        return
    _post({
        "jsonrpc": "2.0",
        "id": _next_id(),
        "method": "initialize",
        "params": {
            "protocolVersion": "2025-03-26",
            "clientInfo": {"name": "mcphub-script", "version": "1.0"},
            "capabilities": {},
        },
    })
    _post({"jsonrpc": "2.0", "method": "notifications/initialized"})
    if _session_id is None:
        _session_id = ""


def invoke(qualified_name, args):
    """Call one federated tool and unwrap its result.

    Structured content is returned directly; text content is parsed as
    JSON when possible and returned as a string otherwise. Error results
    raise ToolError with the backend-supplied reason.
    """
    _ensure_session()
    reply = _post({
        "jsonrpc": "2.0",
        "id": _next_id(),
        "method": "tools/call",
        "params": {"name": qualified_name, "arguments": args or {}},
    })
    if "error" in reply:
        raise ToolError(reply["error"].get("message", str(reply["error"])))

    result = reply.get("result", {})
    text = ""
    for part in result.get("content", []):
        if part.get("type") == "text":
            text = part.get("text", "")
            break
    if result.get("isError"):
        raise ToolError(text or qualified_name + " failed")
    if "structuredContent" in result:
        return result["structuredContent"]
    try:
        return json.loads(text)
    except (json.JSONDecodeError, TypeError):
        return text
`
