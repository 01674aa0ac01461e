package api

// indexHTML is the control page: both viewports, a start/stop button and the
// grayscale checkbox. Per-tick stats come over the histogram websocket.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>histocam</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: system-ui, -apple-system, sans-serif;
            background: #1e1e1e;
            color: #d4d4d4;
            padding: 20px;
        }
        h1 {
            font-size: 20px;
            margin-bottom: 16px;
        }
        .viewports {
            display: flex;
            gap: 16px;
            align-items: flex-start;
            flex-wrap: wrap;
        }
        .viewport {
            background: #000;
            border: 1px solid #333;
        }
        .viewport img {
            display: block;
            max-width: 100%;
        }
        .controls {
            display: flex;
            gap: 16px;
            align-items: center;
            margin: 16px 0;
        }
        button {
            padding: 8px 18px;
            border: none;
            border-radius: 20px;
            background: rgba(70, 130, 180, 0.9);
            color: white;
            font-size: 14px;
            cursor: pointer;
        }
        button.running {
            background: rgba(220, 80, 80, 0.9);
        }
        .status {
            font-family: monospace;
            font-size: 13px;
        }
        .label { color: #569cd6; }
        .value { color: #4ec9b0; }
        .error { color: #ce9178; }
    </style>
</head>
<body>
    <h1>histocam</h1>
    <div class="controls">
        <button id="startBtn" onclick="toggleCapture()">Start</button>
        <label><input type="checkbox" id="grayscale" onchange="setGrayscale(this.checked)"> Grayscale</label>
        <span class="status">
            <span class="label">state:</span> <span class="value" id="state">-</span>
            <span class="label">ticks:</span> <span class="value" id="ticks">0</span>
            <span class="label">mode:</span> <span class="value" id="mode">-</span>
            <span class="error" id="error"></span>
        </span>
    </div>
    <div class="viewports">
        <div class="viewport"><img src="/stream/frame" alt="Live frame"></div>
        <div class="viewport"><img src="/stream/histogram" alt="Histogram"></div>
    </div>
    <script>
        let running = false;

        function showStatus(st) {
            running = st.state === 'running';
            document.getElementById('state').textContent = st.state;
            document.getElementById('ticks').textContent = st.ticks;
            document.getElementById('grayscale').checked = st.grayscale;
            const btn = document.getElementById('startBtn');
            btn.textContent = running ? 'Stop' : 'Start';
            btn.classList.toggle('running', running);
        }

        function showError(text) {
            document.getElementById('error').textContent = text;
        }

        function refresh() {
            fetch('/api/capture/status')
                .then(r => r.json())
                .then(showStatus)
                .catch(console.error);
        }

        function toggleCapture() {
            const action = running ? 'stop' : 'start';
            fetch('/api/capture/' + action, { method: 'POST' })
                .then(r => r.ok ? r.json() : r.text().then(t => { throw new Error(t); }))
                .then(st => { showError(''); showStatus(st); })
                .catch(err => showError(err.message));
        }

        function setGrayscale(enabled) {
            fetch('/api/capture/grayscale', {
                method: 'PUT',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ enabled: enabled })
            }).catch(console.error);
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/api/histogram/stream');
            ws.onmessage = (msg) => {
                const ev = JSON.parse(msg.data);
                if (ev.status) {
                    showStatus(ev.status);
                    return;
                }
                document.getElementById('ticks').textContent = ev.seq;
                document.getElementById('mode').textContent = ev.grayscale ? 'gray' : 'colour';
            };
            ws.onclose = () => setTimeout(connect, 2000);
        }

        refresh();
        connect();
    </script>
</body>
</html>`
