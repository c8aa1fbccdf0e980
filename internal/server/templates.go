// Package server serves the built-in chat page: the current buffer rendered
// server-side plus a small long-polling client.
package server

import (
	"html/template"
	"io"

	"github.com/Tyrowin/pollchat/internal/chat"
)

// indexTemplate inserts each message's pre-rendered html unescaped; the body
// was escaped when the message was rendered.
var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"rendered": func(s string) template.HTML { return template.HTML(s) }, //nolint:gosec
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>GoChat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #inbox {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        .message { margin: 5px 0; padding: 3px; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
    </style>
</head>
<body>
    <h1>GoChat</h1>

    <div id="inbox">
        {{- range .Messages}}
        {{rendered .HTML}}
        {{- end}}
    </div>

    <form id="messageform" action="/a/message/new" method="post">
        <input type="text" name="body" id="message" placeholder="Type a message..." autocomplete="off">
        <input type="hidden" name="next" value="/">
        <button type="submit">Post</button>
    </form>

    <script>
        const inbox = document.getElementById('inbox');
        const form = document.getElementById('messageform');
        const input = document.getElementById('message');
        let cursor = {{.Cursor}};

        function show(messages) {
            for (const m of messages) {
                if (document.getElementById('m' + m.id)) {
                    continue;
                }
                inbox.insertAdjacentHTML('beforeend', m.html);
                cursor = m.id;
            }
            inbox.scrollTop = inbox.scrollHeight;
        }

        async function poll() {
            for (;;) {
                try {
                    const resp = await fetch('/a/message/updates', {
                        method: 'POST',
                        headers: {'Content-Type': 'application/json'},
                        body: JSON.stringify({cursor: cursor}),
                    });
                    if (!resp.ok) {
                        throw new Error('poll failed: ' + resp.status);
                    }
                    const data = await resp.json();
                    show(data.messages);
                } catch (err) {
                    await new Promise(r => setTimeout(r, 5000));
                }
            }
        }

        form.addEventListener('submit', async function(e) {
            e.preventDefault();
            const body = input.value.trim();
            if (!body) {
                return;
            }
            input.value = '';
            await fetch('/a/message/new', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({body: body}),
            });
        });

        poll();
    </script>
</body>
</html>
`))

type indexData struct {
	Messages []chat.Message
	Cursor   string
}

func renderIndex(w io.Writer, msgs []chat.Message) error {
	data := indexData{Messages: msgs}
	if len(msgs) > 0 {
		data.Cursor = msgs[len(msgs)-1].ID
	}
	return indexTemplate.Execute(w, data)
}
